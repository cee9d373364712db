package filter

import (
	"strconv"
	"strings"
)

// Parse parses a filter expression into an AST. An empty (whitespace-
// only) expression returns (nil, nil) — the empty filter matching every
// Flow, per spec.md §8's boundary behavior.
func Parse(src string) (*Expr, error) {
	p := &parser{src: src}
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, nil
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, &ParseError{Pos: p.pos, Message: "unexpected trailing input", Expected: "end of expression"}
	}
	return expr, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n' || p.src[p.pos] == '\r') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

// atTermStart reports whether the cursor (after skipping space) sits at
// the start of a new term: '(' , '!' , or '~'. Used to implement the
// "'&' is optional between adjacent terms" grammar rule.
func (p *parser) atTermStart() bool {
	p.skipSpace()
	c := p.peek()
	return c == '(' || c == '!' || c == '~'
}

func (p *parser) parseOr() (*Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.peek() != '|' {
			break
		}
		opPos := p.pos
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: NodeOr, Left: left, Right: right, Pos: opPos}
	}
	return left, nil
}

func (p *parser) parseAnd() (*Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		opPos := p.pos
		explicit := p.peek() == '&'
		if explicit {
			p.pos++
		} else if !p.atTermStart() {
			break
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: NodeAnd, Left: left, Right: right, Pos: opPos}
	}
	return left, nil
}

func (p *parser) parseNot() (*Expr, error) {
	p.skipSpace()
	if p.peek() == '!' {
		pos := p.pos
		p.pos++
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: NodeNot, Operand: operand, Pos: pos}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (*Expr, error) {
	p.skipSpace()
	switch p.peek() {
	case '(':
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return nil, &ParseError{Pos: p.pos, Message: "unterminated group", Expected: ")"}
		}
		p.pos++
		return inner, nil
	case '~':
		return p.parsePredicate()
	case 0:
		return nil, &ParseError{Pos: p.pos, Message: "unexpected end of expression", Expected: "predicate or '('"}
	default:
		return nil, &ParseError{Pos: p.pos, Message: "unexpected character", Expected: "predicate, '(' or '!'"}
	}
}

func isIdentByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func (p *parser) parsePredicate() (*Expr, error) {
	start := p.pos
	p.pos++ // consume '~'
	nameStart := p.pos
	for p.pos < len(p.src) && isIdentByte(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == nameStart {
		return nil, &ParseError{Pos: start, Message: "empty predicate name", Expected: "predicate letters after '~'"}
	}
	kind := PredicateKind("~" + p.src[nameStart:p.pos])
	if !validPredicateKind(kind) {
		return nil, &ParseError{Pos: start, Message: "unknown predicate '" + string(kind) + "'", Expected: "one of the known filter predicates"}
	}

	node := &Expr{Kind: NodePredicate, Predicate: kind, Pos: start}

	switch {
	case kind.TakesComparator():
		p.skipSpace()
		cmp, err := p.parseComparator()
		if err != nil {
			return nil, err
		}
		node.Comparator = cmp
		p.skipSpace()
		intStart := p.pos
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		if p.pos == intStart {
			return nil, &ParseError{Pos: p.pos, Message: "expected integer", Expected: "an integer"}
		}
		n, err := strconv.ParseInt(p.src[intStart:p.pos], 10, 64)
		if err != nil {
			return nil, &ParseError{Pos: intStart, Message: "invalid integer", Expected: "an integer"}
		}
		node.IntArg = n
	case kind.TakesArg():
		p.skipSpace()
		arg, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		node.Arg = arg
	}
	return node, nil
}

func validPredicateKind(k PredicateKind) bool {
	for _, p := range AllPredicates {
		if p == k {
			return true
		}
	}
	return false
}

func (p *parser) parseComparator() (Comparator, error) {
	rest := p.src[p.pos:]
	for _, c := range []Comparator{CmpGE, CmpLE, CmpGT, CmpLT, CmpEQ} {
		if strings.HasPrefix(rest, string(c)) {
			p.pos += len(c)
			return c, nil
		}
	}
	return "", &ParseError{Pos: p.pos, Message: "expected comparator", Expected: ">, >=, <, <= or ="}
}

func (p *parser) parseArg() (string, error) {
	if p.peek() == '"' {
		start := p.pos
		p.pos++
		var b strings.Builder
		for p.pos < len(p.src) && p.src[p.pos] != '"' {
			b.WriteByte(p.src[p.pos])
			p.pos++
		}
		if p.pos >= len(p.src) {
			return "", &ParseError{Pos: start, Message: "unterminated quoted argument", Expected: "closing '\"'"}
		}
		p.pos++ // consume closing quote
		return b.String(), nil
	}
	start := p.pos
	for p.pos < len(p.src) && !isSpace(p.src[p.pos]) && p.src[p.pos] != ')' && p.src[p.pos] != '(' &&
		p.src[p.pos] != '&' && p.src[p.pos] != '|' && p.src[p.pos] != '!' {
		p.pos++
	}
	if p.pos == start {
		return "", &ParseError{Pos: start, Message: "expected argument", Expected: "a bare token or quoted string"}
	}
	return p.src[start:p.pos], nil
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
