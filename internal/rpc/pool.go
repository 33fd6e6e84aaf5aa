package rpc

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	// DefaultIdleTTL is how long an unused client may sit in the pool.
	DefaultIdleTTL = 5 * time.Minute
	// DefaultHandshakeTimeout bounds the initialize exchange.
	DefaultHandshakeTimeout = 10 * time.Second
)

type poolEntry struct {
	client   *Client
	lastUsed time.Time
}

// Pool shares live clients across registration and execution calls, keyed
// by launch command. Two chains using the same tool id serialize on that
// tool's subprocess; different commands proceed independently.
type Pool struct {
	mu        sync.Mutex
	clients   map[string]*poolEntry
	idleTTL   time.Duration
	hsTimeout time.Duration
	done      chan struct{}
	closeOnce sync.Once
	connect   func(command string, handshakeTimeout time.Duration) (*Client, error)

	// OnReconnect, when set, is invoked after any pooled client repairs a
	// crashed subprocess.
	OnReconnect func()
}

// NewPool creates a pool and starts its idle-eviction janitor. Zero values
// select the defaults.
func NewPool(idleTTL, handshakeTimeout time.Duration) *Pool {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	p := &Pool{
		clients:   make(map[string]*poolEntry),
		idleTTL:   idleTTL,
		hsTimeout: handshakeTimeout,
		done:      make(chan struct{}),
		connect:   Connect,
	}
	go p.janitor()
	return p
}

// Get returns the live client for the launch command, dialing one if none
// exists yet.
func (p *Pool) Get(command string) (*Client, error) {
	p.mu.Lock()
	if e, ok := p.clients[command]; ok {
		e.lastUsed = time.Now()
		c := e.client
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	// Dial outside the lock; handshakes can be slow.
	c, err := p.connect(command, p.hsTimeout)
	if err != nil {
		return nil, err
	}
	c.onReconnect = func() {
		if p.OnReconnect != nil {
			p.OnReconnect()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.clients[command]; ok {
		// Lost the race; keep the first client.
		go func() { _ = c.Close() }()
		e.lastUsed = time.Now()
		return e.client, nil
	}
	p.clients[command] = &poolEntry{client: c, lastUsed: time.Now()}
	return c, nil
}

// Invoke routes one capability call through the pooled client for the
// command. It implements the executor's invoker contract.
func (p *Pool) Invoke(ctx context.Context, command, capability string, args map[string]any, timeout time.Duration) (string, bool, error) {
	c, err := p.Get(command)
	if err != nil {
		return "", false, err
	}
	res, err := c.Call(ctx, capability, args, timeout)
	if err != nil {
		return "", false, err
	}
	return res.Content, res.IsError, nil
}

// CloseAll terminates every pooled client and stops the janitor.
func (p *Pool) CloseAll() {
	p.closeOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	entries := p.clients
	p.clients = make(map[string]*poolEntry)
	p.mu.Unlock()

	for command, e := range entries {
		if err := e.client.Close(); err != nil {
			log.Printf("rpc: close %s: %v", command, err)
		}
	}
}

func (p *Pool) janitor() {
	ticker := time.NewTicker(p.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case now := <-ticker.C:
			p.evictIdle(now)
		}
	}
}

func (p *Pool) evictIdle(now time.Time) {
	var victims []*poolEntry
	p.mu.Lock()
	for command, e := range p.clients {
		if now.Sub(e.lastUsed) >= p.idleTTL && e.client.Idle() {
			delete(p.clients, command)
			victims = append(victims, e)
			log.Printf("rpc: evicting idle client for %q", command)
		}
	}
	p.mu.Unlock()

	for _, e := range victims {
		_ = e.client.Close()
	}
}
