// Package scheduler runs chains on cron schedules defined in config.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// ChainRunner executes a chain by id with an initial input and variables.
type ChainRunner interface {
	Run(ctx context.Context, chainID, initialInput string, vars map[string]string) error
}

// Entry is one scheduled chain run.
type Entry struct {
	Name    string
	Spec    string
	ChainID string
	Input   string
	Vars    map[string]string
}

// Scheduler fires chain executions on cron specs.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	runner  ChainRunner
	entries map[string]cron.EntryID
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func New(runner ChainRunner) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(),
		runner:  runner,
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers a schedule. Invalid cron specs and duplicate names are errors.
func (s *Scheduler) Add(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if e.ChainID == "" {
		return fmt.Errorf("schedule %q: chain id is required", e.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[e.Name]; exists {
		return fmt.Errorf("schedule %q already exists", e.Name)
	}

	entry := e
	id, err := s.cron.AddFunc(e.Spec, func() {
		s.execute(entry)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: invalid spec %q: %w", e.Name, e.Spec, err)
	}
	s.entries[e.Name] = id
	return nil
}

// Remove stops a schedule by name.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("schedule %q not found", name)
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	return nil
}

// Names returns the registered schedule names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	return out
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for in-flight runs to drain.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) execute(e Entry) {
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.runner.Run(s.ctx, e.ChainID, e.Input, e.Vars); err != nil {
		log.Printf("scheduler: schedule %q chain %q: %v", e.Name, e.ChainID, err)
	}
}
