package filter

import "strings"

// CompletionKind discriminates the kind field the UI uses to style a
// suggestion.
type CompletionKind string

const (
	CompletionFilter   CompletionKind = "filter"
	CompletionOperator CompletionKind = "operator"
	CompletionValue    CompletionKind = "value"
)

// Completion is one autocomplete suggestion.
type Completion struct {
	Text        string
	Description string
	Kind        CompletionKind
}

// Complete produces suggestions for the buffer at cursor, following the
// last-non-whitespace-token-class table in spec.md §4.6.
func Complete(buffer string, cursor int) []Completion {
	if cursor < 0 || cursor > len(buffer) {
		cursor = len(buffer)
	}
	prefix := buffer[:cursor]
	trimmed := strings.TrimRight(prefix, " \t")
	lastWord, hadTrailingSpace := lastToken(prefix)

	switch {
	case trimmed == "":
		return allPredicateCompletions()
	case strings.HasSuffix(trimmed, "(") || strings.HasSuffix(trimmed, "&") || strings.HasSuffix(trimmed, "|") || strings.HasSuffix(trimmed, "!"):
		return allPredicateCompletions()
	case lastWord == string(PredState) && hadTrailingSpace:
		return stateCompletions()
	case (lastWord == string(PredTokens) || lastWord == string(PredLatency)) && hadTrailingSpace:
		return comparatorCompletions()
	case strings.HasPrefix(lastWord, "~") && !hadTrailingSpace:
		return partialPredicateCompletions(lastWord)
	case !hadTrailingSpace && lastWord != "" && !strings.HasPrefix(lastWord, "~"):
		return operatorCompletions()
	default:
		return allPredicateCompletions()
	}
}

// lastToken returns the last whitespace-delimited token ending at the
// cursor, and whether the cursor sits after trailing whitespace (so the
// "token" is actually the empty string following a completed word).
func lastToken(prefix string) (string, bool) {
	trimmedRight := strings.TrimRight(prefix, " \t")
	hadTrailingSpace := len(trimmedRight) < len(prefix)
	// Split on operator/paren boundaries too, so `~p kiro&~m` sees `~m`.
	cut := 0
	for i := len(trimmedRight) - 1; i >= 0; i-- {
		c := trimmedRight[i]
		if c == ' ' || c == '\t' || c == '(' || c == ')' || c == '&' || c == '|' || c == '!' {
			cut = i + 1
			break
		}
	}
	return trimmedRight[cut:], hadTrailingSpace
}

func allPredicateCompletions() []Completion {
	out := make([]Completion, 0, len(AllPredicates))
	for _, p := range AllPredicates {
		out = append(out, Completion{Text: string(p), Description: predicateDescription(p), Kind: CompletionFilter})
	}
	return out
}

func partialPredicateCompletions(partial string) []Completion {
	var out []Completion
	for _, p := range AllPredicates {
		if strings.HasPrefix(string(p), partial) {
			out = append(out, Completion{Text: string(p), Description: predicateDescription(p), Kind: CompletionFilter})
		}
	}
	return out
}

func stateCompletions() []Completion {
	out := make([]Completion, 0, 5)
	for _, s := range []string{"pending", "streaming", "completed", "failed", "cancelled", "intercepted"} {
		out = append(out, Completion{Text: s, Kind: CompletionValue})
	}
	return out
}

func comparatorCompletions() []Completion {
	out := make([]Completion, 0, len(AllComparators))
	for _, c := range AllComparators {
		out = append(out, Completion{Text: string(c), Kind: CompletionOperator})
	}
	return out
}

func operatorCompletions() []Completion {
	return []Completion{
		{Text: "&", Description: "and", Kind: CompletionOperator},
		{Text: "|", Description: "or", Kind: CompletionOperator},
		{Text: "!", Description: "not", Kind: CompletionOperator},
	}
}

func predicateDescription(p PredicateKind) string {
	switch p {
	case PredModel:
		return "model match (substring, '*' wildcard)"
	case PredProvider:
		return "provider match (exact)"
	case PredState:
		return "state match (exact)"
	case PredHasError:
		return "has error"
	case PredHasTool:
		return "has tool calls"
	case PredHasThink:
		return "has thinking"
	case PredStarred:
		return "starred only"
	case PredTag:
		return "has tag"
	case PredBody:
		return "content substring"
	case PredBodyReq:
		return "request-only substring"
	case PredBodyResp:
		return "response-only substring"
	case PredTokens:
		return "total tokens compare"
	case PredLatency:
		return "duration_ms compare"
	default:
		return ""
	}
}
