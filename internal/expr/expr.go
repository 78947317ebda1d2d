// Package expr implements a small, safe filter language for tabular data.
//
// The query planner asks the model for a filter over statistics rows. The
// reply is parsed into a fixed grammar instead of being executed as code,
// so a hostile or confused model cannot run anything:
//
//	expr       := or
//	or         := and ("OR" and)*
//	and        := term ("AND" term)*
//	term       := "(" expr ")" | "NOT" term | comparison
//	comparison := column ("contains" | "==" | "!=") value
//
// Columns and values are quoted strings or bare words. Keywords are
// case-insensitive. Anything outside the grammar is a parse error.
package expr

import (
	"fmt"
	"strings"
)

// UnsafeExpressionError marks input rejected before parsing because it
// contains fragments that only appear in code, never in a filter.
type UnsafeExpressionError struct {
	Fragment string
}

func (e *UnsafeExpressionError) Error() string {
	return fmt.Sprintf("expression rejected: contains forbidden fragment %q", e.Fragment)
}

// forbidden fragments: none of these can occur in a well-formed filter,
// so their presence means the model produced code instead of a filter.
var forbiddenFragments = []string{
	";", "function", "func ", "=>", "eval", "require", "import",
	"os.", "exec", "process", "fs.", "http",
}

// Validate rejects raw input that looks like code rather than a filter.
// Parse calls this first; it is exported so callers can pre-screen.
func Validate(input string) error {
	lowered := strings.ToLower(input)
	for _, frag := range forbiddenFragments {
		if strings.Contains(lowered, frag) {
			return &UnsafeExpressionError{Fragment: frag}
		}
	}
	return nil
}

// Predicate is a compiled filter over a row of column -> value pairs.
type Predicate struct {
	root node
	src  string
}

// String returns the original source expression.
func (p *Predicate) String() string {
	return p.src
}

// Eval reports whether the row matches. A malformed row can never error:
// missing columns compare as empty strings.
func (p *Predicate) Eval(row map[string]string) bool {
	if p == nil || p.root == nil {
		return false
	}
	return p.root.eval(row)
}

// Parse validates and compiles a filter expression.
func Parse(input string) (*Predicate, error) {
	if err := Validate(input); err != nil {
		return nil, err
	}

	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}

	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("unexpected token %q after expression", p.tokens[p.pos].text)
	}

	return &Predicate{root: root, src: input}, nil
}

type node interface {
	eval(row map[string]string) bool
}

type orNode struct{ left, right node }

func (n *orNode) eval(row map[string]string) bool {
	return n.left.eval(row) || n.right.eval(row)
}

type andNode struct{ left, right node }

func (n *andNode) eval(row map[string]string) bool {
	return n.left.eval(row) && n.right.eval(row)
}

type notNode struct{ inner node }

func (n *notNode) eval(row map[string]string) bool {
	return !n.inner.eval(row)
}

type compareNode struct {
	column string
	op     string // "contains", "==", "!="
	value  string
}

func (n *compareNode) eval(row map[string]string) bool {
	cell := ""
	for col, v := range row {
		if Normalize(col) == Normalize(n.column) {
			cell = v
			break
		}
	}

	left := Normalize(cell)
	right := Normalize(n.value)

	switch n.op {
	case "contains":
		return strings.Contains(left, right)
	case "==":
		return left == right
	case "!=":
		return left != right
	}
	return false
}

// Normalize canonicalizes a cell or literal for comparison: lowercase,
// hyphens become spaces, runs of whitespace collapse. "Laki - Laki",
// "laki-laki" and "LAKI LAKI" all normalize to "laki laki".
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokKeyword || !strings.EqualFold(t.text, "OR") {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orNode{left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokKeyword || !strings.EqualFold(t.text, "AND") {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &andNode{left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	if t.kind == tokLParen {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.next()
		if !ok || closing.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return inner, nil
	}

	if t.kind == tokKeyword && strings.EqualFold(t.text, "NOT") {
		p.pos++
		inner, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}

	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	col, ok := p.next()
	if !ok || (col.kind != tokString && col.kind != tokWord) {
		return nil, fmt.Errorf("expected column name, got %q", col.text)
	}

	op, ok := p.next()
	if !ok {
		return nil, fmt.Errorf("expected operator after column %q", col.text)
	}
	var opText string
	switch {
	case op.kind == tokOp && (op.text == "==" || op.text == "!="):
		opText = op.text
	case op.kind == tokKeyword && strings.EqualFold(op.text, "contains"):
		opText = "contains"
	default:
		return nil, fmt.Errorf("expected contains, == or != after column %q, got %q", col.text, op.text)
	}

	val, ok := p.next()
	if !ok || (val.kind != tokString && val.kind != tokWord) {
		return nil, fmt.Errorf("expected value after operator %q", opText)
	}

	return &compareNode{column: col.text, op: opText, value: val.text}, nil
}
