// Package chain holds the workflow model and the executor that drives
// registered tool services through multi-step chains.
package chain

import (
	"time"
)

// InitialInputVar is the reserved environment name seeded with the
// execution's initial input.
const InitialInputVar = "INITIAL_INPUT"

// OutputFormat describes how a tool's output should be interpreted.
type OutputFormat string

const (
	OutputText       OutputFormat = "text"
	OutputStructured OutputFormat = "structured"
)

// Valid reports whether f is a known output format.
func (f OutputFormat) Valid() bool {
	return f == OutputText || f == OutputStructured
}

// ToolRegistration binds a local tool id to a launch command and one remote
// capability. Overwriting an id replaces the prior definition atomically.
type ToolRegistration struct {
	ID            string        `json:"id" yaml:"id"`
	LaunchCommand string        `json:"launch_command" yaml:"launch_command"`
	Capability    string        `json:"capability" yaml:"capability"`
	Description   string        `json:"description,omitempty" yaml:"description,omitempty"`
	OutputFormat  OutputFormat  `json:"output_format" yaml:"output_format"`
	Timeout       time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RegisteredAt  time.Time     `json:"registered_at,omitempty" yaml:"-"`
}

// ChainStep is one element of a chain. Argument values may embed {NAME}
// placeholders, resolved against the environment at step start.
type ChainStep struct {
	ToolID    string         `json:"tool_id" yaml:"tool_id"`
	Arguments map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Condition string         `json:"condition,omitempty" yaml:"condition,omitempty"`
	OutputTo  string         `json:"output_to,omitempty" yaml:"output_to,omitempty"`
	Timeout   time.Duration  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ChainDefinition is a named, ordered sequence of steps with an optional
// result-sink path. Replacing a chain id overwrites the whole definition.
type ChainDefinition struct {
	ID         string      `json:"id" yaml:"id"`
	Steps      []ChainStep `json:"steps" yaml:"steps"`
	ResultPath string      `json:"result_path,omitempty" yaml:"result_path,omitempty"`
	DefinedAt  time.Time   `json:"defined_at,omitempty" yaml:"-"`
}

// Status is the terminal state of a chain execution.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusTimedOut  Status = "timed_out"
)

// StepResult records the outcome of one step. Condition is nil when the
// step had no guard.
type StepResult struct {
	Index     int            `json:"index"`
	ToolID    string         `json:"tool_id"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Condition *bool          `json:"condition,omitempty"`
	Skipped   bool           `json:"skipped,omitempty"`
	CacheHit  bool           `json:"cache_hit,omitempty"`
	Output    string         `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// ExecutionRecord is the durable summary of one chain run. FinalResult is
// nil when every step was skipped.
type ExecutionRecord struct {
	ID          string       `json:"id"`
	ChainID     string       `json:"chain_id"`
	Status      Status       `json:"status"`
	Steps       []StepResult `json:"steps"`
	FinalResult *string      `json:"final_result"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
}

// Environment is the evolving name-to-value map visible to a chain's steps.
// Collisions are resolved last-write-wins; a step only ever sees
// assignments made by earlier steps.
type Environment map[string]string

// NewEnvironment seeds an environment with the reserved INITIAL_INPUT entry
// and any caller-supplied variables.
func NewEnvironment(initialInput string, vars map[string]string) Environment {
	env := make(Environment, len(vars)+1)
	for k, v := range vars {
		env[k] = v
	}
	// The reserved name always carries the initial input, even when a
	// caller variable tries to claim it.
	env[InitialInputVar] = initialInput
	return env
}
