// Package reassemble converts a raw SSE byte stream into a sequence of
// delta events plus a canonical final Response body, per spec.md §4.2.
// Buffering is event-delimited (blank-line framed) the same way the
// teacher SDK's providerutils/streaming.SSEParser scans chunks; three
// concrete dialect state machines (OpenAI, Anthropic, Gemini) plus an
// opaque passthrough are selected by Dialect at construction time — the
// "tagged variant, single match at chunk arrival" dispatch spec.md §9
// calls for.
package reassemble

import "github.com/flowtap/flowcore/pkg/flow"

// Dialect names the wire format of the upstream provider a Flow is
// talking to.
type Dialect string

const (
	DialectOpenAI    Dialect = "openai"
	DialectAnthropic Dialect = "anthropic"
	DialectGemini    Dialect = "gemini"
	DialectUnknown   Dialect = "unknown"
)

// DeltaKind discriminates what changed in a Delta event.
type DeltaKind string

const (
	DeltaContent  DeltaKind = "content"
	DeltaThinking DeltaKind = "thinking"
	DeltaToolArgs DeltaKind = "tool_args"
	DeltaRole     DeltaKind = "role"
)

// Delta is one incremental update the Reassembler emits while a Flow is
// Streaming; the UI timeline consumes these, and the Finalizer does not
// need them (it reads the sealed Response instead).
type Delta struct {
	Kind  DeltaKind
	Text  string
	Index int // tool-call index, when Kind == DeltaToolArgs
}

// Limits bounds the Reassembler's per-Flow buffers (spec.md §4.2).
type Limits struct {
	MaxResponseBytes int // default 10 MiB
	MaxRequestBytes  int // default 1 MiB
	RetainRawChunks  bool
}

// DefaultLimits matches the defaults named in spec.md §4.2/§6.
var DefaultLimits = Limits{
	MaxResponseBytes: 10 << 20,
	MaxRequestBytes:  1 << 20,
}

// Machine is the per-Flow SSE state machine. One Machine instance is
// owned by exactly one producing task for the lifetime of a Flow.
type Machine interface {
	// Feed consumes one raw SSE byte chunk (possibly containing several
	// complete events, per the SSE framing guarantee), returning any
	// delta events produced and whether the stream terminator was seen.
	Feed(chunk []byte) (deltas []Delta, terminated bool, err error)

	// Seal finalizes the accumulated Response. Called once, on
	// terminator or on forced completion (body-cap exceeded, upstream
	// error, cancellation).
	Seal() *flow.Response

	// ParseErrorCount is the Flow-local counter of skipped malformed
	// events (spec.md §4.2's failure-mode policy: skip and continue).
	ParseErrorCount() int
}

// New constructs the Machine appropriate for dialect.
func New(dialect Dialect, limits Limits) Machine {
	switch dialect {
	case DialectOpenAI:
		return newOpenAIMachine(limits)
	case DialectAnthropic:
		return newAnthropicMachine(limits)
	case DialectGemini:
		return newGeminiMachine(limits)
	default:
		return newPassthroughMachine(limits)
	}
}
