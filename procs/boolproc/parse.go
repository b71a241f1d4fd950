package boolproc

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Grammar, loosest binding first:
//
//	implies := or ("implies" or)*        (left-associative)
//	or      := and ("or" and)*
//	and     := not ("and" not)*
//	not     := "not" not | atom
//	atom    := "true" | "false" | ident | "(" implies ")"
type node interface {
	eval(assignment map[string]bool) bool
}

type constNode bool

func (n constNode) eval(map[string]bool) bool { return bool(n) }

type varNode string

func (n varNode) eval(a map[string]bool) bool { return a[string(n)] }

type notNode struct{ inner node }

func (n notNode) eval(a map[string]bool) bool { return !n.inner.eval(a) }

type binNode struct {
	op          string
	left, right node
}

func (n binNode) eval(a map[string]bool) bool {
	switch n.op {
	case "and":
		return n.left.eval(a) && n.right.eval(a)
	case "or":
		return n.left.eval(a) || n.right.eval(a)
	default: // implies
		return !n.left.eval(a) || n.right.eval(a)
	}
}

var tokenRe = regexp.MustCompile(`[a-z][a-z0-9_]*|\(|\)`)

type parser struct {
	tokens []string
	pos    int
	vars   map[string]bool
}

func parseFormula(text string) (node, []string, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return nil, nil, fmt.Errorf("empty formula")
	}
	if leftover := strings.TrimSpace(tokenRe.ReplaceAllString(lower, " ")); leftover != "" {
		return nil, nil, fmt.Errorf("unexpected characters %q in formula", leftover)
	}
	tokens := tokenRe.FindAllString(lower, -1)

	p := &parser{tokens: tokens, vars: make(map[string]bool)}
	expr, err := p.parseImplies()
	if err != nil {
		return nil, nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, nil, fmt.Errorf("unexpected token %q", p.tokens[p.pos])
	}

	vars := make([]string, 0, len(p.vars))
	for v := range p.vars {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return expr, vars, nil
}

func (p *parser) parseImplies() (node, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	for p.peek() == "implies" {
		p.pos++
		right, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		left = binNode{op: "implies", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == "or" {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek() == "and" {
		p.pos++
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = binNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.peek() == "not" {
		p.pos++
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (node, error) {
	tok := p.peek()
	switch tok {
	case "":
		return nil, fmt.Errorf("unexpected end of formula")
	case "(":
		p.pos++
		expr, err := p.parseImplies()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return expr, nil
	case ")", "and", "or", "not", "implies":
		return nil, fmt.Errorf("unexpected token %q", tok)
	case "true":
		p.pos++
		return constNode(true), nil
	case "false":
		p.pos++
		return constNode(false), nil
	default:
		p.pos++
		p.vars[tok] = true
		return varNode(tok), nil
	}
}

func (p *parser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}
