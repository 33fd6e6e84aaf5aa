package chain

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/toolweave/toolweave/internal/metrics"
	"github.com/toolweave/toolweave/internal/rpc"
)

// ToolSource yields tool registrations. A missing id is (nil, nil).
type ToolSource interface {
	Tool(ctx context.Context, id string) (*ToolRegistration, error)
}

// ChainSource yields chain definitions. A missing id is (nil, nil).
type ChainSource interface {
	Chain(ctx context.Context, id string) (*ChainDefinition, error)
}

// History is the append-only log of past executions.
type History interface {
	Append(ctx context.Context, rec *ExecutionRecord) error
	Clear(ctx context.Context) error
}

// ResultCache memoizes invocation results by cache key.
type ResultCache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string) error
	Clear(ctx context.Context) error
}

// Invoker routes one capability call to the service behind a launch
// command. The rpc pool implements it.
type Invoker interface {
	Invoke(ctx context.Context, command, capability string, args map[string]any, timeout time.Duration) (content string, isError bool, err error)
}

// Executor drives chain executions: per step it resolves arguments and
// condition, consults the cache, invokes the bound service, and extends the
// environment. Steps run strictly sequentially; a failed step aborts all
// remaining ones.
type Executor struct {
	tools   ToolSource
	chains  ChainSource
	history History
	cache   ResultCache // nil disables memoization
	invoker Invoker

	// DefaultCallTimeout applies when neither the step nor the tool
	// registration carries a timeout.
	DefaultCallTimeout time.Duration
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// New wires an executor. cache may be nil.
func New(tools ToolSource, chains ChainSource, history History, cache ResultCache, invoker Invoker) *Executor {
	return &Executor{
		tools:   tools,
		chains:  chains,
		history: history,
		cache:   cache,
		invoker: invoker,
	}
}

// Execute runs one chain. Unknown chain ids and steps whose tool id is no
// longer registered fail synchronously with a ChainError before any step
// runs. Everything that goes wrong inside the chain, tool-reported errors
// included, is reported through the returned record's status and per-step
// diagnostics, never as a Go error.
func (e *Executor) Execute(ctx context.Context, chainID, initialInput string, vars map[string]string, timeout time.Duration) (*ExecutionRecord, error) {
	def, err := e.chains.Chain(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("loading chain %q: %w", chainID, err)
	}
	if def == nil {
		return nil, &ChainError{Detail: fmt.Sprintf("unknown chain %q", chainID)}
	}

	// Re-validate every tool id: the registry may have mutated since the
	// chain was defined.
	regs := make(map[string]*ToolRegistration)
	for _, st := range def.Steps {
		if _, ok := regs[st.ToolID]; ok {
			continue
		}
		reg, err := e.tools.Tool(ctx, st.ToolID)
		if err != nil {
			return nil, fmt.Errorf("loading tool %q: %w", st.ToolID, err)
		}
		if reg == nil {
			return nil, &ChainError{Detail: fmt.Sprintf("chain %q references unregistered tool %q", chainID, st.ToolID)}
		}
		regs[st.ToolID] = reg
	}

	env := NewEnvironment(initialInput, vars)
	rec := &ExecutionRecord{
		ID:        "exec_" + uuid.New().String(),
		ChainID:   chainID,
		Status:    StatusCompleted,
		StartedAt: time.Now(),
	}

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for i, st := range def.Steps {
		if execCtx.Err() != nil {
			// Aggregate deadline elapsed between steps.
			rec.Status = StatusTimedOut
			break
		}

		res, outName := e.runStep(execCtx, i, st, regs[st.ToolID], env)
		rec.Steps = append(rec.Steps, res)
		if e.Metrics != nil && !res.Skipped {
			e.Metrics.StepDuration.Observe(res.Duration.Seconds())
		}

		if res.Error != "" {
			if execCtx.Err() == context.DeadlineExceeded {
				// The aggregate deadline cut the step down mid-flight.
				// Record the same diagnostic shape a per-call timeout gets
				// instead of the raw context error.
				rec.Status = StatusTimedOut
				te := &rpc.TimeoutError{Op: fmt.Sprintf("chain %s step %d", chainID, i), Timeout: timeout}
				rec.Steps[len(rec.Steps)-1].Error = te.Error()
			} else {
				rec.Status = StatusAborted
			}
			break
		}
		if res.Skipped {
			continue
		}

		out := res.Output
		rec.FinalResult = &out
		if outName != "" {
			env[outName] = out // last write wins
		}
	}

	rec.FinishedAt = time.Now()
	if e.Metrics != nil {
		e.Metrics.Executions.WithLabelValues(string(rec.Status)).Inc()
	}

	if err := e.history.Append(ctx, rec); err != nil {
		log.Printf("chain: recording execution %s: %v", rec.ID, err)
	}
	if def.ResultPath != "" && rec.FinalResult != nil {
		if err := os.WriteFile(def.ResultPath, []byte(*rec.FinalResult), 0600); err != nil {
			log.Printf("chain: writing result sink %s: %v", def.ResultPath, err)
		}
	}
	return rec, nil
}

// runStep resolves the step, checks its guard, then either skips, serves
// from cache, or invokes. It returns the resolved output_to name so the
// caller can extend the environment only after success.
func (e *Executor) runStep(ctx context.Context, index int, st ChainStep, reg *ToolRegistration, env Environment) (StepResult, string) {
	start := time.Now()
	res := StepResult{Index: index, ToolID: st.ToolID}

	finish := func() (StepResult, string) {
		res.Duration = time.Since(start)
		return res, ""
	}

	args, err := ResolveArguments(st.Arguments, env)
	if err != nil {
		res.Error = err.Error()
		return finish()
	}
	res.Arguments = args

	if st.Condition != "" {
		condText, err := ResolveString(st.Condition, env)
		if err != nil {
			res.Error = err.Error()
			return finish()
		}
		v, err := EvaluateCondition(condText)
		if err != nil {
			res.Error = err.Error()
			return finish()
		}
		res.Condition = &v
		if !v {
			res.Skipped = true
			return finish()
		}
	}

	outName := ""
	if st.OutputTo != "" {
		outName, err = ResolveString(st.OutputTo, env)
		if err != nil {
			res.Error = err.Error()
			return finish()
		}
	}

	var key string
	if e.cache != nil {
		key, err = CacheKey(st.ToolID, args)
		if err != nil {
			log.Printf("chain: %v", err)
			key = ""
		}
	}
	if key != "" {
		v, ok, cerr := e.cache.Get(ctx, key)
		switch {
		case cerr != nil:
			// Degrades to a miss; cache trouble is never fatal.
			log.Printf("chain: %v", &CacheError{Key: key, Err: cerr})
		case ok:
			res.CacheHit = true
			res.Output = v
			if e.Metrics != nil {
				e.Metrics.CacheHits.Inc()
			}
			res.Duration = time.Since(start)
			return res, outName
		default:
			if e.Metrics != nil {
				e.Metrics.CacheMisses.Inc()
			}
		}
	}

	content, isErr, err := e.invoker.Invoke(ctx, reg.LaunchCommand, reg.Capability, args, e.stepTimeout(st, reg))
	if err != nil {
		res.Error = err.Error()
		return finish()
	}
	if isErr {
		// The service itself reported failure: a ToolError, surfaced in
		// the summary rather than thrown.
		res.Error = "tool error: " + content
		return finish()
	}

	res.Output = content
	if key != "" {
		if err := e.cache.Put(ctx, key, content); err != nil {
			log.Printf("chain: %v", &CacheError{Key: key, Err: err})
		}
	}
	res.Duration = time.Since(start)
	return res, outName
}

// stepTimeout picks the effective call timeout: step override, then the
// tool's registered default, then the global default.
func (e *Executor) stepTimeout(st ChainStep, reg *ToolRegistration) time.Duration {
	if st.Timeout > 0 {
		return st.Timeout
	}
	if reg.Timeout > 0 {
		return reg.Timeout
	}
	return e.DefaultCallTimeout
}

// Clear wipes the result cache and the execution history together.
// Registration changes never clear the cache; this is the only path.
func (e *Executor) Clear(ctx context.Context) error {
	if e.cache != nil {
		if err := e.cache.Clear(ctx); err != nil {
			return err
		}
	}
	return e.history.Clear(ctx)
}
