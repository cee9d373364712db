package filter

// Sargable is the set of predicates IndexDB can filter on directly,
// extracted from the top-level `&` spine of an AST (spec.md §4.6).
// Predicates not representable here are left for post-hydration
// evaluation via Evaluate.
type Sargable struct {
	Provider       *string
	ModelLikeAny   []string
	State          *string
	HasError       *bool
	HasToolCalls   *bool
	HasThinking    *bool
	Starred        *bool
	Tags           []string
	TotalTokens    []Bound
	Latency        []Bound
	// Residual holds predicates (and any Or/Not subtree other than a
	// `~m`-only Or or `!~e`) that could not be pushed down; it must still
	// be evaluated post-hydration.
	Residual *Expr
}

// Bound is one comparator/value pair pushed down for a ranged column.
type Bound struct {
	Comparator Comparator
	Value      int64
}

// ExtractSargable walks the top-level `&` spine of e (an Or at the root
// makes the whole expression non-sargable, since IndexDB can only narrow
// a conjunction) and pulls out the predicates in the table above. On the
// spine, a `~m`-only Or becomes ModelLikeAny and `!~e` becomes
// HasError=false, including when it stands alone at the root. Everything
// else — including a root Or — is returned unchanged as Residual.
func ExtractSargable(e *Expr) Sargable {
	s := Sargable{}
	if e == nil {
		return s
	}
	if e.Kind == NodeOr {
		s.Residual = e
		return s
	}
	var leftover []*Expr
	collectAndSpine(e, &leftover)
	for _, node := range leftover {
		if !s.absorb(node) {
			s.Residual = andTogether(s.Residual, node)
		}
	}
	return s
}

// collectAndSpine flattens a chain of NodeAnd nodes (the parser builds
// them left-leaning; either nesting works) into
// its leaves (each leaf is itself a predicate or a Not/Or subtree).
func collectAndSpine(e *Expr, out *[]*Expr) {
	if e.Kind == NodeAnd {
		collectAndSpine(e.Left, out)
		collectAndSpine(e.Right, out)
		return
	}
	*out = append(*out, e)
}

func andTogether(acc, next *Expr) *Expr {
	if acc == nil {
		return next
	}
	return &Expr{Kind: NodeAnd, Left: acc, Right: next}
}

func (s *Sargable) absorb(node *Expr) bool {
	switch node.Kind {
	case NodePredicate:
		return s.absorbPredicate(node)
	case NodeNot:
		if node.Operand.Kind == NodePredicate && node.Operand.Predicate == PredHasError {
			f := false
			s.HasError = &f
			return true
		}
		return false
	case NodeOr:
		// A disjunction of nothing but `~m` leaves (e.g. `(~m claude* |
		// ~m gpt*)`) is still sargable as a model_like_any set — every
		// other Or shape is left for post-hydration evaluation.
		models, ok := collectModelOnlyOr(node)
		if !ok {
			return false
		}
		s.ModelLikeAny = append(s.ModelLikeAny, models...)
		return true
	default:
		return false
	}
}

func collectModelOnlyOr(e *Expr) ([]string, bool) {
	if e.Kind == NodeOr {
		left, ok := collectModelOnlyOr(e.Left)
		if !ok {
			return nil, false
		}
		right, ok := collectModelOnlyOr(e.Right)
		if !ok {
			return nil, false
		}
		return append(left, right...), true
	}
	if e.Kind == NodePredicate && e.Predicate == PredModel {
		return []string{e.Arg}, true
	}
	return nil, false
}

func (s *Sargable) absorbPredicate(node *Expr) bool {
	switch node.Predicate {
	case PredProvider:
		v := node.Arg
		s.Provider = &v
		return true
	case PredModel:
		s.ModelLikeAny = append(s.ModelLikeAny, node.Arg)
		return true
	case PredState:
		v := node.Arg
		s.State = &v
		return true
	case PredHasError:
		t := true
		s.HasError = &t
		return true
	case PredHasTool:
		t := true
		s.HasToolCalls = &t
		return true
	case PredHasThink:
		t := true
		s.HasThinking = &t
		return true
	case PredStarred:
		t := true
		s.Starred = &t
		return true
	case PredTag:
		s.Tags = append(s.Tags, node.Arg)
		return true
	case PredTokens:
		s.TotalTokens = append(s.TotalTokens, Bound{node.Comparator, node.IntArg})
		return true
	case PredLatency:
		s.Latency = append(s.Latency, Bound{node.Comparator, node.IntArg})
		return true
	default:
		return false
	}
}
