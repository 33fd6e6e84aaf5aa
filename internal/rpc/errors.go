package rpc

import (
	"fmt"
	"time"
)

// ProtocolError reports malformed or uncorrelated protocol traffic: a line
// that is not a well-formed message, a response with no outstanding request,
// a failed version negotiation, or a JSON-RPC error member.
type ProtocolError struct {
	Detail string
	Code   int // JSON-RPC error code when the service reported one, else 0
}

func (e *ProtocolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("protocol error %d: %s", e.Code, e.Detail)
	}
	return "protocol error: " + e.Detail
}

// TransportError reports a spawn, crash or pipe failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports that a handshake, discovery or call exceeded its
// allotted time.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s exceeded %s", e.Op, e.Timeout)
}
