package service

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
)

// JSON-RPC error codes used by Serve.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInternalError  = -32603
)

// Handler is the interface that tool service authors implement. The host
// calls Call for each capability invocation. Returning isError true reports
// a capability-level failure; returning a non-nil err reports an internal
// fault and produces a protocol error response instead of a result.
type Handler interface {
	Capabilities() []Capability
	Call(name string, args map[string]any) (content string, isError bool, err error)
}

// Serve reads protocol lines from r and writes responses to w until r is
// exhausted. A service normally passes os.Stdin and os.Stdout. Discovery
// and invocation requests are rejected until the initialize handshake has
// completed. Serve returns nil on clean EOF.
func Serve(r io.Reader, w io.Writer, info PeerInfo, h Handler) error {
	sc := NewLineScanner(r)
	initialized := false

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if werr := writeError(w, nil, codeParseError, "malformed message"); werr != nil {
				return werr
			}
			continue
		}

		switch req.Method {
		case MethodInitialize:
			var params InitializeParams
			if err := json.Unmarshal(req.Params, &params); err != nil || params.ProtocolVersion != ProtocolVersion {
				if werr := writeError(w, req.ID, codeInvalidRequest,
					fmt.Sprintf("unsupported protocol version (want %s)", ProtocolVersion)); werr != nil {
					return werr
				}
				continue
			}
			if err := writeResult(w, req.ID, InitializeResult{
				ProtocolVersion: ProtocolVersion,
				ServerInfo:      info,
			}); err != nil {
				return err
			}

		case MethodInitialized:
			// Readiness acknowledgment; a notification, no response.
			initialized = true

		case MethodList:
			if !initialized {
				if err := writeError(w, req.ID, codeInvalidRequest, "not initialized"); err != nil {
					return err
				}
				continue
			}
			if err := writeResult(w, req.ID, ListResult{Capabilities: h.Capabilities()}); err != nil {
				return err
			}

		case MethodCall:
			if !initialized {
				if err := writeError(w, req.ID, codeInvalidRequest, "not initialized"); err != nil {
					return err
				}
				continue
			}
			var params CallParams
			if err := json.Unmarshal(req.Params, &params); err != nil {
				if werr := writeError(w, req.ID, codeInvalidRequest, "malformed call params"); werr != nil {
					return werr
				}
				continue
			}
			content, isErr, err := h.Call(params.Name, params.Arguments)
			if err != nil {
				if werr := writeError(w, req.ID, codeInternalError, err.Error()); werr != nil {
					return werr
				}
				continue
			}
			if err := writeResult(w, req.ID, CallResult{Content: content, IsError: isErr}); err != nil {
				return err
			}

		default:
			if req.ID == nil {
				continue // unknown notification, ignore
			}
			if err := writeError(w, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method)); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		log.Printf("service: read: %v", err)
		return err
	}
	return nil
}

func writeResult(w io.Writer, id *int64, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return WriteMessage(w, Response{JSONRPC: "2.0", ID: id, Result: raw})
}

func writeError(w io.Writer, id *int64, code int, msg string) error {
	return WriteMessage(w, Response{JSONRPC: "2.0", ID: id, Error: &ResponseError{Code: code, Message: msg}})
}
