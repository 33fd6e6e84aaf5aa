package chain

import "fmt"

// ResolutionError reports a {NAME} placeholder referencing an undefined
// environment entry. Resolution never silently substitutes an empty value.
type ResolutionError struct {
	Name string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolution: undefined variable {%s}", e.Name)
}

// EvaluationError reports a malformed condition or one that did not yield
// a boolean. It aborts the step rather than defaulting either way.
type EvaluationError struct {
	Expr   string
	Detail string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation: %s in %q", e.Detail, e.Expr)
}

// ChainError reports a malformed request to the chainer itself: an unknown
// chain id, or a step referencing an unregistered tool id.
type ChainError struct {
	Detail string
}

func (e *ChainError) Error() string { return "chain: " + e.Detail }

// CacheError reports a corrupt or unreachable cache entry. It degrades to
// a cache miss and is never fatal to a chain.
type CacheError struct {
	Key string
	Err error
}

func (e *CacheError) Error() string { return fmt.Sprintf("cache: key %s: %v", e.Key, e.Err) }
func (e *CacheError) Unwrap() error { return e.Err }
