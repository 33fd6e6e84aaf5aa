// Command echo-service is a minimal tool service used for smoke tests
// and as a template for writing new services.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/toolweave/toolweave/pkg/service"
)

type echoHandler struct{}

func (echoHandler) Capabilities() []service.Capability {
	return []service.Capability{
		{
			Name:        "echo",
			Description: "Returns its text argument unchanged.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{"type": "string"},
				},
				"required": []any{"text"},
			},
		},
		{
			Name:        "upper",
			Description: "Returns its text argument upper-cased.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{"type": "string"},
				},
				"required": []any{"text"},
			},
		},
	}
}

func (echoHandler) Call(name string, args map[string]any) (string, bool, error) {
	text, ok := args["text"].(string)
	if !ok {
		return "missing string argument: text", true, nil
	}
	switch name {
	case "echo":
		return text, false, nil
	case "upper":
		return strings.ToUpper(text), false, nil
	default:
		return "", false, fmt.Errorf("unknown capability %q", name)
	}
}

func main() {
	info := service.PeerInfo{Name: "echo-service", Version: "1.0.0"}
	if err := service.Serve(os.Stdin, os.Stdout, info, echoHandler{}); err != nil {
		log.Fatalf("echo-service: %v", err)
	}
}
