// Package service defines the wire protocol spoken between the toolweave
// host and a tool service, and a helper for implementing the service side
// in Go. Messages are a line-delimited JSON-RPC 2.0 subset: exactly one
// JSON object per line over the service process's stdin/stdout.
package service

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

const (
	// ProtocolVersion is the version negotiated during the handshake.
	ProtocolVersion = "1"
	// MaxLineSize is the maximum length of a single protocol line (4 MB).
	MaxLineSize = 4 * 1024 * 1024

	MethodInitialize  = "initialize"
	MethodInitialized = "initialized"
	MethodList        = "capabilities/list"
	MethodCall        = "capabilities/call"
)

// Request is one host-to-service message. A nil ID marks a notification,
// which expects no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one service-to-host message, correlated by ID.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the error member of a failed response.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// InitializeParams is the payload of the initialize request.
type InitializeParams struct {
	ProtocolVersion string   `json:"protocolVersion"`
	ClientInfo      PeerInfo `json:"clientInfo"`
}

// InitializeResult is the payload of a successful initialize response.
type InitializeResult struct {
	ProtocolVersion string   `json:"protocolVersion"`
	ServerInfo      PeerInfo `json:"serverInfo"`
}

// PeerInfo identifies one end of the connection.
type PeerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capability describes one operation a service exposes.
type Capability struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ListResult is the payload of a capabilities/list response, in server order.
type ListResult struct {
	Capabilities []Capability `json:"capabilities"`
}

// CallParams is the payload of a capabilities/call request.
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallResult is the payload of a capabilities/call response. IsError marks
// a failure reported by the capability itself, as opposed to a protocol
// failure; Content then carries the diagnostic text.
type CallResult struct {
	Content string `json:"content"`
	IsError bool   `json:"isError,omitempty"`
}

// WriteMessage marshals v and writes it as a single newline-terminated line.
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if len(data) > MaxLineSize {
		return fmt.Errorf("message too large: %d bytes (max %d)", len(data), MaxLineSize)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// NewLineScanner returns a scanner over r sized for protocol lines.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), MaxLineSize)
	return sc
}
