// Package filter implements the typed filter expression language of
// spec.md §4.6: a lexer/parser producing an AST, a validator, an
// evaluator over flow.Flow, a sargable-predicate extractor for the
// index engine, and cursor-position autocomplete for the UI.
package filter

// NodeKind discriminates the Expr union.
type NodeKind int

const (
	NodeOr NodeKind = iota
	NodeAnd
	NodeNot
	NodePredicate
)

// Comparator is one of the five comparison operators `~tokens`/`~latency`
// accept.
type Comparator string

const (
	CmpGT Comparator = ">"
	CmpGE Comparator = ">="
	CmpLT Comparator = "<"
	CmpLE Comparator = "<="
	CmpEQ Comparator = "="
)

// AllComparators lists the five comparators in a stable order, used by
// autocomplete.
var AllComparators = []Comparator{CmpGT, CmpGE, CmpLT, CmpLE, CmpEQ}

// PredicateKind names one of the leaf predicates.
type PredicateKind string

const (
	PredModel     PredicateKind = "~m"
	PredProvider  PredicateKind = "~p"
	PredState     PredicateKind = "~s"
	PredHasError  PredicateKind = "~e"
	PredHasTool   PredicateKind = "~t"
	PredHasThink  PredicateKind = "~k"
	PredStarred   PredicateKind = "~starred"
	PredTag       PredicateKind = "~tag"
	PredBody      PredicateKind = "~b"
	PredBodyReq   PredicateKind = "~bq"
	PredBodyResp  PredicateKind = "~bs"
	PredTokens    PredicateKind = "~tokens"
	PredLatency   PredicateKind = "~latency"
)

// AllPredicates lists every predicate prefix, used by autocomplete.
var AllPredicates = []PredicateKind{
	PredModel, PredProvider, PredState, PredHasError, PredHasTool, PredHasThink,
	PredStarred, PredTag, PredBody, PredBodyReq, PredBodyResp, PredTokens, PredLatency,
}

// TakesArg reports whether a predicate requires an ARG token.
func (k PredicateKind) TakesArg() bool {
	switch k {
	case PredHasError, PredHasTool, PredHasThink, PredStarred:
		return false
	default:
		return true
	}
}

// TakesComparator reports whether a predicate is of the `CMP INT` shape.
func (k PredicateKind) TakesComparator() bool {
	return k == PredTokens || k == PredLatency
}

// Expr is one node of the filter AST. Exactly the fields relevant to
// Kind are populated.
type Expr struct {
	Kind     NodeKind
	Left     *Expr // Or/And
	Right    *Expr // Or/And
	Operand  *Expr // Not

	Predicate  PredicateKind
	Arg        string
	Comparator Comparator
	IntArg     int64

	// Pos is the byte offset of this node in the source expression,
	// used by the UI's red-underline error rendering.
	Pos int
}

// Empty reports whether e represents the empty filter (matches all
// Flows), per the boundary behavior in spec.md §8.
func Empty(e *Expr) bool { return e == nil }
