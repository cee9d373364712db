package filter

import (
	"strings"

	"github.com/flowtap/flowcore/pkg/flow"
)

// Validate walks an already-parsed AST and checks that state literals
// and comparator operands are well-formed. Parse already rejects
// malformed syntax; Validate catches semantically invalid but
// syntactically valid input (e.g. `~s bogus-state`).
func Validate(e *Expr) error {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case NodeOr, NodeAnd:
		if err := Validate(e.Left); err != nil {
			return err
		}
		return Validate(e.Right)
	case NodeNot:
		return Validate(e.Operand)
	case NodePredicate:
		return validatePredicate(e)
	}
	return nil
}

func validatePredicate(e *Expr) error {
	if e.Predicate == PredState {
		if !validStateLiteral(e.Arg) {
			return &ParseError{Pos: e.Pos, Message: "invalid state '" + e.Arg + "'", Expected: stateList()}
		}
	}
	if e.Predicate.TakesComparator() && e.IntArg < 0 {
		return &ParseError{Pos: e.Pos, Message: "negative operand not allowed", Expected: "a non-negative integer"}
	}
	return nil
}

func validStateLiteral(s string) bool {
	s = strings.ToLower(s)
	for _, st := range flow.AllStates {
		if string(st) == s {
			return true
		}
	}
	return false
}

func stateList() string {
	parts := make([]string, len(flow.AllStates))
	for i, s := range flow.AllStates {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
