package rpc

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Process manages the lifecycle of a tool service subprocess. The service's
// stdin and stdout carry the wire protocol; stderr passes through to the
// host's stderr.
type Process struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	exited chan struct{}
}

// StartProcess splits the launch command on whitespace, spawns it with
// protocol pipes attached and returns the running handle.
func StartProcess(command string) (*Process, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, &TransportError{Op: "spawn", Err: fmt.Errorf("empty launch command")}
	}

	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &TransportError{Op: "stdin pipe", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, &TransportError{Op: "stdout pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, &TransportError{Op: "spawn " + fields[0], Err: err}
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		exited: make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

// Stdin returns the write end of the service's stdin.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout returns the read end of the service's stdout.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Exited returns a channel that is closed when the process exits.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Running reports whether the process is still alive.
func (p *Process) Running() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Stop closes stdin to signal graceful termination, sends an interrupt, and
// kills the process if it has not exited within the grace period.
func (p *Process) Stop(grace time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_ = p.stdin.Close()
	if !p.Running() {
		return nil
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		log.Printf("rpc: interrupt %s: %v, killing", p.cmd.Path, err)
		return p.cmd.Process.Kill()
	}

	select {
	case <-p.exited:
		return nil
	case <-time.After(grace):
		log.Printf("rpc: %s did not exit after %s, killing", p.cmd.Path, grace)
		return p.cmd.Process.Kill()
	}
}
