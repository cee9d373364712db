package filter

import (
	"strconv"
	"strings"
)

// Format renders e back to surface syntax. Parse(Format(e)) produces an
// AST structurally equal to e (the round-trip law in spec.md §8), though
// not necessarily byte-identical to the original source (whitespace and
// redundant parens are normalized).
func Format(e *Expr) string {
	if e == nil {
		return ""
	}
	return formatOr(e)
}

func formatOr(e *Expr) string {
	if e.Kind != NodeOr {
		return formatAnd(e)
	}
	return formatAnd(e.Left) + " | " + formatAnd(e.Right)
}

func formatAnd(e *Expr) string {
	if e.Kind != NodeAnd {
		return formatNot(e)
	}
	return formatNot(e.Left) + " & " + formatNot(e.Right)
}

func formatNot(e *Expr) string {
	switch e.Kind {
	case NodeNot:
		return "!" + formatNot(e.Operand)
	case NodeOr, NodeAnd:
		return "(" + formatOr(e) + ")"
	default:
		return formatPredicate(e)
	}
}

func formatPredicate(e *Expr) string {
	var b strings.Builder
	b.WriteString(string(e.Predicate))
	switch {
	case e.Predicate.TakesComparator():
		b.WriteByte(' ')
		b.WriteString(string(e.Comparator))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(e.IntArg, 10))
	case e.Predicate.TakesArg():
		b.WriteByte(' ')
		b.WriteString(formatArg(e.Arg))
	}
	return b.String()
}

func formatArg(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\r()&|!\"") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

// Equal reports whether two ASTs are structurally equivalent, used by
// the round-trip test law.
func Equal(a, b *Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case NodeOr, NodeAnd:
		return Equal(a.Left, b.Left) && Equal(a.Right, b.Right)
	case NodeNot:
		return Equal(a.Operand, b.Operand)
	default:
		return a.Predicate == b.Predicate && a.Arg == b.Arg &&
			a.Comparator == b.Comparator && a.IntArg == b.IntArg
	}
}
