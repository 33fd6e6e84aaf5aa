package chain

import (
	"errors"
	"testing"
)

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"true", true},
		{"false", false},
		{"not true", false},
		{"not false", true},
		{"'a' == 'a'", true},
		{"'a' == 'b'", false},
		{"'a' != 'b'", true},
		{`"quoted" == 'quoted'`, true},
		{"abc == abc", true},
		{"'hello world' contains 'world'", true},
		{"'hello world' contains 'mars'", false},
		{"'' contains ''", true},
		{"true and true", true},
		{"true and false", false},
		{"false or true", true},
		{"false or false", false},
		{"not 'a' == 'a'", false},
		{"true and not false", true},
		{"(true or false) and true", true},
		{"'a' == 'a' and 'b' != 'c'", true},
		{"'x' == 'y' or 'p' contains 'p'", true},
		{"a = a", true},
		{"  true  ", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := EvaluateCondition(tt.expr)
			if err != nil {
				t.Fatalf("EvaluateCondition(%q): %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("EvaluateCondition(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluateConditionErrors(t *testing.T) {
	exprs := []string{
		"",
		"justaword",
		"'unterminated",
		"== 'a'",
		"'a' ==",
		"true and",
		"or true",
		"(true",
		"true)",
		"'a' == 'b' extra",
		"not",
		"'a' < 'b'",
	}
	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			_, err := EvaluateCondition(expr)
			var ee *EvaluationError
			if !errors.As(err, &ee) {
				t.Fatalf("EvaluateCondition(%q) err = %v, want EvaluationError", expr, err)
			}
		})
	}
}
