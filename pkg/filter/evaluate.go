package filter

import (
	"strings"

	"github.com/flowtap/flowcore/pkg/flow"
)

// Evaluate reports whether f matches e. A nil e (the empty filter)
// matches every Flow. Missing data makes a predicate evaluate to false
// without error (spec.md §4.6's "missing data" semantics).
func Evaluate(e *Expr, f *flow.Flow) bool {
	if e == nil {
		return true
	}
	switch e.Kind {
	case NodeOr:
		return Evaluate(e.Left, f) || Evaluate(e.Right, f)
	case NodeAnd:
		return Evaluate(e.Left, f) && Evaluate(e.Right, f)
	case NodeNot:
		return !Evaluate(e.Operand, f)
	default:
		return evaluatePredicate(e, f)
	}
}

func evaluatePredicate(e *Expr, f *flow.Flow) bool {
	switch e.Predicate {
	case PredModel:
		return wildcardMatch(strings.ToLower(e.Arg), strings.ToLower(f.Request.Model))
	case PredProvider:
		return strings.EqualFold(e.Arg, f.Metadata.Provider)
	case PredState:
		return strings.EqualFold(e.Arg, string(f.State))
	case PredHasError:
		return f.Error != nil
	case PredHasTool:
		return f.Response != nil && len(f.Response.ToolCalls) > 0
	case PredHasThink:
		return f.Response != nil && f.Response.Thinking != nil
	case PredStarred:
		return f.Annotations.Starred
	case PredTag:
		return f.Annotations.HasTag(e.Arg)
	case PredBody:
		return containsFold(f.Request.PlainText(), e.Arg) ||
			(f.Response != nil && containsFold(f.Response.Content, e.Arg))
	case PredBodyReq:
		return containsFold(f.Request.PlainText(), e.Arg)
	case PredBodyResp:
		return f.Response != nil && containsFold(f.Response.Content, e.Arg)
	case PredTokens:
		if f.Response == nil || f.Response.Usage.TotalTokens == nil {
			return false
		}
		return compare(*f.Response.Usage.TotalTokens, e.Comparator, e.IntArg)
	case PredLatency:
		if f.Timestamps.DurationMs == nil {
			return false
		}
		return compare(*f.Timestamps.DurationMs, e.Comparator, e.IntArg)
	default:
		return false
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func compare(actual int64, cmp Comparator, want int64) bool {
	switch cmp {
	case CmpGT:
		return actual > want
	case CmpGE:
		return actual >= want
	case CmpLT:
		return actual < want
	case CmpLE:
		return actual <= want
	case CmpEQ:
		return actual == want
	default:
		return false
	}
}

// wildcardMatch implements the `~m` substring/`*`-wildcard match:
// pattern and value are already lower-cased by the caller. A pattern
// with no '*' is treated as a plain substring match.
func wildcardMatch(pattern, value string) bool {
	if !strings.Contains(pattern, "*") {
		return strings.Contains(value, pattern)
	}
	segments := strings.Split(pattern, "*")
	pos := 0
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		idx := strings.Index(value[pos:], seg)
		if idx == -1 {
			return false
		}
		if i == 0 && !strings.HasPrefix(pattern, "*") && idx != 0 {
			return false
		}
		pos += idx + len(seg)
	}
	if !strings.HasSuffix(pattern, "*") {
		lastSeg := segments[len(segments)-1]
		if lastSeg != "" && !strings.HasSuffix(value, lastSeg) {
			return false
		}
	}
	return true
}
