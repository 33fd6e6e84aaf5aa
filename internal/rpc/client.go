package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/toolweave/toolweave/pkg/service"
)

const (
	clientName       = "toolweave"
	defaultStopGrace = 3 * time.Second
)

// transport is one live connection to a service: the protocol pipes plus a
// terminator. Tests substitute in-memory pipes here.
type transport struct {
	in   io.WriteCloser
	out  io.Reader
	stop func()
}

type dialFunc func() (*transport, error)

type outcome struct {
	resp *service.Response
	err  error
}

// Client owns one tool service subprocess. It performs the capability
// handshake once per connection, serializes calls, and correlates responses
// by request id through a single reader goroutine. A dead connection is
// repaired by exactly one transparent reconnect on the next call.
type Client struct {
	name      string
	dial      dialFunc
	hsTimeout time.Duration

	callMu sync.Mutex // one in-flight request at a time

	mu        sync.Mutex
	tr        *transport
	dead      bool
	closed    bool
	pending   map[int64]chan outcome
	abandoned map[int64]struct{}

	nextID   atomic.Int64
	inflight atomic.Int32

	// onReconnect, when set, is invoked after each successful reconnect.
	onReconnect func()
}

// Connect spawns the launch command and performs the handshake. The returned
// client must be Closed when no longer needed.
func Connect(command string, handshakeTimeout time.Duration) (*Client, error) {
	c := &Client{
		name:      command,
		hsTimeout: handshakeTimeout,
		pending:   make(map[int64]chan outcome),
		abandoned: make(map[int64]struct{}),
		dial: func() (*transport, error) {
			p, err := StartProcess(command)
			if err != nil {
				return nil, err
			}
			return &transport{
				in:   p.Stdin(),
				out:  p.Stdout(),
				stop: func() { _ = p.Stop(defaultStopGrace) },
			}, nil
		},
	}
	if err := c.establish(); err != nil {
		return nil, err
	}
	return c, nil
}

// newClient is the test seam: it builds a client over an arbitrary dialer.
func newClient(name string, dial dialFunc, handshakeTimeout time.Duration) (*Client, error) {
	c := &Client{
		name:      name,
		dial:      dial,
		hsTimeout: handshakeTimeout,
		pending:   make(map[int64]chan outcome),
		abandoned: make(map[int64]struct{}),
	}
	if err := c.establish(); err != nil {
		return nil, err
	}
	return c, nil
}

// establish dials a fresh transport, starts its reader, and completes the
// initialize / initialized exchange.
func (c *Client) establish() error {
	tr, err := c.dial()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tr = tr
	c.dead = false
	c.pending = make(map[int64]chan outcome)
	c.abandoned = make(map[int64]struct{})
	c.mu.Unlock()

	go c.readLoop(tr)

	if err := c.handshake(); err != nil {
		tr.stop()
		c.markDead()
		return err
	}
	return nil
}

func (c *Client) handshake() error {
	raw, err := c.roundTrip(context.Background(), "handshake", service.MethodInitialize, service.InitializeParams{
		ProtocolVersion: service.ProtocolVersion,
		ClientInfo:      service.PeerInfo{Name: clientName, Version: "1"},
	}, c.hsTimeout)
	if err != nil {
		return fmt.Errorf("handshake with %s: %w", c.name, err)
	}

	var result service.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return &ProtocolError{Detail: fmt.Sprintf("malformed initialize result: %v", err)}
	}
	if result.ProtocolVersion != service.ProtocolVersion {
		return &ProtocolError{Detail: fmt.Sprintf("unsupported protocol version %q (want %s)",
			result.ProtocolVersion, service.ProtocolVersion)}
	}

	// Readiness acknowledgment: a notification, no response expected.
	if err := c.send(service.Request{JSONRPC: "2.0", Method: service.MethodInitialized}); err != nil {
		return err
	}
	return nil
}

// ListCapabilities returns the service's capabilities in server order.
func (c *Client) ListCapabilities(ctx context.Context) ([]service.Capability, error) {
	raw, err := c.invoke(ctx, "list capabilities", service.MethodList, nil, c.hsTimeout)
	if err != nil {
		return nil, err
	}
	var result service.ListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("malformed list result: %v", err)}
	}
	return result.Capabilities, nil
}

// Call invokes a capability and blocks until its correlated response
// arrives, the timeout elapses, or ctx is done. A CallResult with IsError
// set is a normal outcome: the service itself reported failure.
func (c *Client) Call(ctx context.Context, name string, args map[string]any, timeout time.Duration) (*service.CallResult, error) {
	raw, err := c.invoke(ctx, "call "+name, service.MethodCall, service.CallParams{
		Name:      name,
		Arguments: args,
	}, timeout)
	if err != nil {
		return nil, err
	}
	var result service.CallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Detail: fmt.Sprintf("malformed call result: %v", err)}
	}
	return &result, nil
}

// Close signals graceful termination and force-terminates the subprocess
// after the grace period.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	tr := c.tr
	c.mu.Unlock()

	if tr != nil {
		tr.stop()
	}
	return nil
}

// Idle reports whether no request is currently in flight.
func (c *Client) Idle() bool { return c.inflight.Load() == 0 }

// invoke serializes the request against other callers and repairs a dead
// connection with exactly one reconnect attempt before failing.
func (c *Client) invoke(ctx context.Context, op, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	c.inflight.Add(1)
	defer c.inflight.Add(-1)

	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.mu.Lock()
	closed, dead := c.closed, c.dead
	c.mu.Unlock()
	if closed {
		return nil, &TransportError{Op: op, Err: errors.New("client closed")}
	}

	reconnected := false
	if dead {
		log.Printf("rpc: %s: connection dead, reconnecting", c.name)
		if err := c.reconnect(); err != nil {
			return nil, err
		}
		reconnected = true
	}

	raw, err := c.roundTrip(ctx, op, method, params, timeout)
	if err != nil && !reconnected {
		var te *TransportError
		if errors.As(err, &te) {
			log.Printf("rpc: %s: %v, reconnecting once", c.name, err)
			if rerr := c.reconnect(); rerr != nil {
				return nil, err
			}
			raw, err = c.roundTrip(ctx, op, method, params, timeout)
		}
	}
	return raw, err
}

func (c *Client) reconnect() error {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr != nil {
		tr.stop()
	}

	if err := c.establish(); err != nil {
		return err
	}
	if c.onReconnect != nil {
		c.onReconnect()
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, op, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := c.nextID.Add(1)
	req := service.Request{JSONRPC: "2.0", ID: &id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = raw
	}

	ch := make(chan outcome, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(req); err != nil {
		return nil, err
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		if out.resp.Error != nil {
			return nil, &ProtocolError{Code: out.resp.Error.Code, Detail: out.resp.Error.Message}
		}
		return out.resp.Result, nil
	case <-timer:
		c.abandon(id)
		return nil, &TimeoutError{Op: op, Timeout: timeout}
	case <-ctx.Done():
		c.abandon(id)
		return nil, ctx.Err()
	}
}

func (c *Client) send(req service.Request) error {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return &TransportError{Op: "send", Err: errors.New("no connection")}
	}
	if err := service.WriteMessage(tr.in, req); err != nil {
		c.markDead()
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// abandon records that the waiter for id has given up, so a late response
// is dropped instead of failing a later call as uncorrelated traffic.
func (c *Client) abandon(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.abandoned[id] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) markDead() {
	c.mu.Lock()
	c.dead = true
	c.mu.Unlock()
}

// readLoop is the only reader of the transport. It demuxes responses to
// their waiters by id; when the stream ends the connection is marked dead
// and any waiter fails with a TransportError.
func (c *Client) readLoop(tr *transport) {
	sc := service.NewLineScanner(tr.out)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp service.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.failPending(tr, &ProtocolError{Detail: fmt.Sprintf("malformed line: %v", err)})
			continue
		}
		if resp.ID == nil {
			c.failPending(tr, &ProtocolError{Detail: "response without id"})
			continue
		}

		c.mu.Lock()
		if c.tr != tr {
			c.mu.Unlock()
			return // superseded by a reconnect
		}
		if _, ok := c.abandoned[*resp.ID]; ok {
			delete(c.abandoned, *resp.ID)
			c.mu.Unlock()
			continue
		}
		ch, ok := c.pending[*resp.ID]
		c.mu.Unlock()

		if !ok {
			c.failPending(tr, &ProtocolError{Detail: fmt.Sprintf("uncorrelated response id %d", *resp.ID)})
			continue
		}
		ch <- outcome{resp: &resp}
	}

	err := sc.Err()
	if err == nil {
		err = errors.New("service closed stdout")
	}
	c.mu.Lock()
	if c.tr != tr {
		c.mu.Unlock()
		return
	}
	c.dead = true
	c.mu.Unlock()
	c.failPending(tr, &TransportError{Op: "read", Err: err})
}

// failPending delivers err to every outstanding waiter on tr. With calls
// serialized there is at most one.
func (c *Client) failPending(tr *transport, err error) {
	c.mu.Lock()
	if c.tr != tr {
		c.mu.Unlock()
		return
	}
	chans := make([]chan outcome, 0, len(c.pending))
	for id, ch := range c.pending {
		delete(c.pending, id)
		chans = append(chans, ch)
	}
	c.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- outcome{err: err}:
		default:
		}
	}
}
