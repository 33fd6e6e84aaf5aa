package chain

import (
	"regexp"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ResolveString substitutes every {NAME} occurrence in s from env.
// Resolution is deterministic, side-effect free, and fails with a
// ResolutionError on the first undefined name.
func ResolveString(s string, env Environment) (string, error) {
	var missing *ResolutionError
	out := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		if missing != nil {
			return match
		}
		name := match[1 : len(match)-1]
		v, ok := env[name]
		if !ok {
			missing = &ResolutionError{Name: name}
			return match
		}
		return v
	})
	if missing != nil {
		return "", missing
	}
	return out, nil
}

// ResolveValue resolves placeholders in every string leaf of v, recursing
// through nested maps and lists. Non-string leaves pass through unchanged.
func ResolveValue(v any, env Environment) (any, error) {
	switch t := v.(type) {
	case string:
		return ResolveString(t, env)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			r, err := ResolveValue(elem, env)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			r, err := ResolveValue(elem, env)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// ResolveArguments resolves a step's argument map against a snapshot of the
// environment. A nil map resolves to an empty one.
func ResolveArguments(args map[string]any, env Environment) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		r, err := ResolveValue(v, env)
		if err != nil {
			return nil, err
		}
		out[k] = r
	}
	return out, nil
}
