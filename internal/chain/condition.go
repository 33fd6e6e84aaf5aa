package chain

import (
	"fmt"
	"strings"
)

// EvaluateCondition evaluates a guard expression over already-resolved
// text. The language is intentionally tiny: equality (= or ==) and
// inequality (!=) of two strings, substring containment (contains), the
// literals true and false, combined with and / or / not and parentheses.
// Operands may be bare words or quoted with ' or ". Host-language
// expressions are never evaluated; anything that does not reduce to a
// boolean is an EvaluationError.
func EvaluateCondition(expr string) (bool, error) {
	tokens, err := lexCondition(expr)
	if err != nil {
		return false, &EvaluationError{Expr: expr, Detail: err.Error()}
	}
	p := &condParser{expr: expr, tokens: tokens}
	v, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if !p.done() {
		return false, &EvaluationError{Expr: expr, Detail: fmt.Sprintf("unexpected %q", p.peek().text)}
	}
	return v, nil
}

type condTokenKind int

const (
	tokWord condTokenKind = iota
	tokQuoted
	tokAnd
	tokOr
	tokNot
	tokContains
	tokTrue
	tokFalse
	tokEq
	tokNeq
	tokLParen
	tokRParen
	tokEOF
)

type condToken struct {
	kind condTokenKind
	text string
}

func lexCondition(expr string) ([]condToken, error) {
	var tokens []condToken
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			tokens = append(tokens, condToken{kind: tokLParen, text: "("})
			i++
		case c == ')':
			tokens = append(tokens, condToken{kind: tokRParen, text: ")"})
			i++
		case c == '=':
			if i+1 < len(expr) && expr[i+1] == '=' {
				i++
			}
			tokens = append(tokens, condToken{kind: tokEq, text: "=="})
			i++
		case c == '!':
			if i+1 >= len(expr) || expr[i+1] != '=' {
				return nil, fmt.Errorf("stray '!'")
			}
			tokens = append(tokens, condToken{kind: tokNeq, text: "!="})
			i += 2
		case c == '\'' || c == '"':
			end := strings.IndexByte(expr[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string")
			}
			tokens = append(tokens, condToken{kind: tokQuoted, text: expr[i+1 : i+1+end]})
			i += end + 2
		default:
			start := i
			for i < len(expr) && !strings.ContainsRune(" \t\n()=!'\"", rune(expr[i])) {
				i++
			}
			word := expr[start:i]
			switch word {
			case "and":
				tokens = append(tokens, condToken{kind: tokAnd, text: word})
			case "or":
				tokens = append(tokens, condToken{kind: tokOr, text: word})
			case "not":
				tokens = append(tokens, condToken{kind: tokNot, text: word})
			case "contains":
				tokens = append(tokens, condToken{kind: tokContains, text: word})
			case "true":
				tokens = append(tokens, condToken{kind: tokTrue, text: word})
			case "false":
				tokens = append(tokens, condToken{kind: tokFalse, text: word})
			default:
				tokens = append(tokens, condToken{kind: tokWord, text: word})
			}
		}
	}
	return append(tokens, condToken{kind: tokEOF}), nil
}

type condParser struct {
	expr   string
	tokens []condToken
	pos    int
}

func (p *condParser) peek() condToken { return p.tokens[p.pos] }

func (p *condParser) next() condToken {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *condParser) done() bool { return p.peek().kind == tokEOF }

func (p *condParser) fail(detail string) error {
	return &EvaluationError{Expr: p.expr, Detail: detail}
}

func (p *condParser) parseOr() (bool, error) {
	v, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for p.peek().kind == tokOr {
		p.next()
		rhs, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		v = v || rhs
	}
	return v, nil
}

func (p *condParser) parseAnd() (bool, error) {
	v, err := p.parseUnary()
	if err != nil {
		return false, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		rhs, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		v = v && rhs
	}
	return v, nil
}

func (p *condParser) parseUnary() (bool, error) {
	if p.peek().kind == tokNot {
		p.next()
		v, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		return !v, nil
	}
	return p.parsePrimary()
}

func (p *condParser) parsePrimary() (bool, error) {
	switch p.peek().kind {
	case tokLParen:
		p.next()
		v, err := p.parseOr()
		if err != nil {
			return false, err
		}
		if p.peek().kind != tokRParen {
			return false, p.fail("missing ')'")
		}
		p.next()
		return v, nil

	case tokWord, tokQuoted, tokTrue, tokFalse:
		tok := p.next()
		switch p.peek().kind {
		case tokEq, tokNeq, tokContains:
			op := p.next()
			rhs, err := p.operand()
			if err != nil {
				return false, err
			}
			switch op.kind {
			case tokEq:
				return tok.text == rhs, nil
			case tokNeq:
				return tok.text != rhs, nil
			default:
				return strings.Contains(tok.text, rhs), nil
			}
		}
		// No comparison follows: only the boolean literals stand alone.
		if tok.kind == tokTrue {
			return true, nil
		}
		if tok.kind == tokFalse {
			return false, nil
		}
		return false, p.fail(fmt.Sprintf("%q is not a boolean", tok.text))

	case tokEOF:
		return false, p.fail("empty condition")
	default:
		return false, p.fail(fmt.Sprintf("unexpected %q", p.peek().text))
	}
}

// operand consumes one comparison operand: a word, quoted string, or a
// true/false literal used as plain text.
func (p *condParser) operand() (string, error) {
	switch p.peek().kind {
	case tokWord, tokQuoted, tokTrue, tokFalse:
		return p.next().text, nil
	default:
		return "", p.fail(fmt.Sprintf("expected operand, got %q", p.peek().text))
	}
}
