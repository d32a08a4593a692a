// Package expr implements the closed-form expression language used by claim
// mappings and issuance rule conditions.
//
// The grammar is deliberately small: comparison and boolean operators over
// literals and dotted paths resolved from a fixed context map. Expressions
// are parsed into an AST and evaluated by tree-walking; no code is ever
// constructed or executed at runtime, which removes the injection vector a
// string-based evaluator would open.
//
//	expr   := or
//	or     := and ("||" and)*
//	and    := unary ("&&" unary)*
//	unary  := "!" unary | cmp
//	cmp    := term (("=="|"!="|"<"|"<="|">"|">=") term)?
//	term   := number | string | "true" | "false" | path | "(" expr ")"
//	path   := ident ("." ident)*
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Node is an AST node evaluated against a context map.
type Node interface {
	Eval(ctx map[string]any) (any, error)
}

// Literal holds a constant value: float64, string, or bool.
type Literal struct {
	Value any
}

func (l *Literal) Eval(map[string]any) (any, error) {
	return l.Value, nil
}

// Path resolves a dotted name against the context map. Unresolvable paths
// yield nil rather than an error so rules can test for absent data.
type Path struct {
	Parts []string
}

func (p *Path) Eval(ctx map[string]any) (any, error) {
	var cur any = ctx
	for _, part := range p.Parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, nil
		}
		cur, ok = m[part]
		if !ok {
			return nil, nil
		}
	}
	return cur, nil
}

// Compare is a binary comparison node.
type Compare struct {
	Op          string
	Left, Right Node
}

func (c *Compare) Eval(ctx map[string]any) (any, error) {
	left, err := c.Left.Eval(ctx)
	if err != nil {
		return nil, err
	}
	right, err := c.Right.Eval(ctx)
	if err != nil {
		return nil, err
	}
	return compare(c.Op, left, right)
}

// Logic is a binary boolean node (&& or ||) with short-circuit evaluation.
type Logic struct {
	Op          string
	Left, Right Node
}

func (l *Logic) Eval(ctx map[string]any) (any, error) {
	left, err := l.Left.Eval(ctx)
	if err != nil {
		return nil, err
	}
	lb := truthy(left)
	if l.Op == "&&" && !lb {
		return false, nil
	}
	if l.Op == "||" && lb {
		return true, nil
	}
	right, err := l.Right.Eval(ctx)
	if err != nil {
		return nil, err
	}
	return truthy(right), nil
}

// Not negates its operand's truthiness.
type Not struct {
	Operand Node
}

func (n *Not) Eval(ctx map[string]any) (any, error) {
	v, err := n.Operand.Eval(ctx)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

// Parse compiles the expression source into an AST.
func Parse(src string) (Node, error) {
	p := &parser{src: src}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, fmt.Errorf("unexpected trailing input at offset %d: %q", p.pos, p.src[p.pos:])
	}
	return node, nil
}

// EvalBool parses and evaluates an expression, coercing the result to bool.
// Used by the rule engine where conditions must be predicates.
func EvalBool(src string, ctx map[string]any) (bool, error) {
	node, err := Parse(src)
	if err != nil {
		return false, err
	}
	v, err := node.Eval(ctx)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// Eval parses and evaluates an expression, returning the raw value.
// Used by claim mappings where the resolved value becomes the claim.
func Eval(src string, ctx map[string]any) (any, error) {
	node, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return node.Eval(ctx)
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) accept(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Logic{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.accept("&&") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Logic{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	p.skipSpace()
	// "!" must not swallow "!=".
	if p.pos < len(p.src) && p.src[p.pos] == '!' && !strings.HasPrefix(p.src[p.pos:], "!=") {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Operand: operand}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	// Order matters: multi-char operators before their prefixes.
	for _, op := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if p.accept(op) {
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			return &Compare{Op: op, Left: left, Right: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseTerm() (Node, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	if p.accept("(") {
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.accept(")") {
			return nil, fmt.Errorf("missing closing parenthesis at offset %d", p.pos)
		}
		return node, nil
	}

	ch := p.src[p.pos]
	switch {
	case ch == '\'' || ch == '"':
		return p.parseString(ch)
	case ch >= '0' && ch <= '9' || ch == '-':
		return p.parseNumber()
	default:
		return p.parsePath()
	}
}

func (p *parser) parseString(quote byte) (Node, error) {
	start := p.pos + 1
	for i := start; i < len(p.src); i++ {
		if p.src[i] == quote {
			value := p.src[start:i]
			p.pos = i + 1
			return &Literal{Value: value}, nil
		}
	}
	return nil, fmt.Errorf("unterminated string at offset %d", p.pos)
}

func (p *parser) parseNumber() (Node, error) {
	start := p.pos
	if p.src[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9' || p.src[p.pos] == '.') {
		p.pos++
	}
	value, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", p.src[start:p.pos])
	}
	return &Literal{Value: value}, nil
}

func (p *parser) parsePath() (Node, error) {
	start := p.pos
	for p.pos < len(p.src) {
		ch := rune(p.src[p.pos])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.' {
			p.pos++
			continue
		}
		break
	}
	name := p.src[start:p.pos]
	if name == "" {
		return nil, fmt.Errorf("unexpected character %q at offset %d", p.src[start], start)
	}
	switch name {
	case "true":
		return &Literal{Value: true}, nil
	case "false":
		return &Literal{Value: false}, nil
	case "null":
		return &Literal{Value: nil}, nil
	}
	return &Path{Parts: strings.Split(name, ".")}, nil
}

// compare applies a comparison operator with numeric coercion. Ordered
// comparisons require two numbers or two strings; mismatched or nil operands
// compare unequal and unordered.
func compare(op string, left, right any) (any, error) {
	ln, lok := asNumber(left)
	rn, rok := asNumber(right)

	switch op {
	case "==":
		if lok && rok {
			return ln == rn, nil
		}
		return left == right, nil
	case "!=":
		if lok && rok {
			return ln != rn, nil
		}
		return left != right, nil
	}

	if lok && rok {
		switch op {
		case "<":
			return ln < rn, nil
		case "<=":
			return ln <= rn, nil
		case ">":
			return ln > rn, nil
		case ">=":
			return ln >= rn, nil
		}
	}

	ls, lsok := left.(string)
	rs, rsok := right.(string)
	if lsok && rsok {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}

	return false, nil
}

// asNumber coerces the numeric types JSON decoding and Go literals produce.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case nil:
		return false
	}
	if n, ok := asNumber(v); ok {
		return n != 0
	}
	return true
}
