// Package flow defines the canonical Flow record: the single structure
// every captured LLM request/response exchange is normalized into,
// regardless of wire dialect or streaming mode.
package flow

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// State is the finite set of lifecycle states a Flow can occupy.
type State string

const (
	StatePending     State = "pending"
	StateStreaming   State = "streaming"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
	StateIntercepted State = "intercepted"
)

// Terminal reports whether s is one of the states after which a Flow is
// immutable except for Annotations.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateStreaming, StateCompleted, StateFailed, StateCancelled, StateIntercepted:
		return true
	default:
		return false
	}
}

// AllStates lists the six state values in a stable order, used by the
// filter autocomplete and by validation error messages.
var AllStates = []State{StatePending, StateStreaming, StateCompleted, StateFailed, StateCancelled, StateIntercepted}

// Flow is the canonical record of one captured LLM exchange.
type Flow struct {
	ID          ulid.ULID    `json:"id"`
	Request     Request      `json:"request"`
	Response    *Response    `json:"response,omitempty"`
	Error       *FlowError   `json:"error,omitempty"`
	Metadata    Metadata     `json:"metadata"`
	Timestamps  Timestamps   `json:"timestamps"`
	State       State        `json:"state"`
	Annotations Annotations  `json:"annotations"`
}

// FlowError records an Error block on a Flow. Mutually exclusive with a
// *successful* Response; a Response with a non-2xx status may coexist
// with a FlowError.
type FlowError struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Status    *int      `json:"statusCode,omitempty"`
	RawBody   string    `json:"rawBody,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New constructs a Flow in StatePending for a freshly accepted request.
func New(id ulid.ULID, req Request, now time.Time) *Flow {
	return &Flow{
		ID:      id,
		Request: req,
		State:   StatePending,
		Timestamps: Timestamps{
			Created: now,
		},
	}
}

// Summary is the compact projection broadcast on the EventBus and
// returned by list/search queries (flow_summary in spec.md §4.8).
type Summary struct {
	ID              ulid.ULID `json:"id"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	State           State     `json:"state"`
	DurationMs      *int64    `json:"durationMs,omitempty"`
	InputTokens     *int64    `json:"inputTokens,omitempty"`
	OutputTokens    *int64    `json:"outputTokens,omitempty"`
	ContentPreview  string    `json:"contentPreview"`
	HasError        bool      `json:"hasError"`
	HasToolCalls    bool      `json:"hasToolCalls"`
	HasThinking     bool      `json:"hasThinking"`
	Starred         bool      `json:"starred"`
	CreatedAt       time.Time `json:"createdAt"`
}

const previewLen = 200

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen])
}

// ToSummary projects f into its compact broadcast/list representation.
func (f *Flow) ToSummary() Summary {
	s := Summary{
		ID:        f.ID,
		Provider:  f.Metadata.Provider,
		Model:     f.Request.Model,
		State:     f.State,
		HasError:  f.Error != nil,
		Starred:   f.Annotations.Starred,
		CreatedAt: f.Timestamps.Created,
	}
	if f.Timestamps.DurationMs != nil {
		s.DurationMs = f.Timestamps.DurationMs
	}
	if f.Response != nil {
		s.ContentPreview = preview(f.Response.Content)
		s.HasThinking = f.Response.Thinking != nil
		s.HasToolCalls = len(f.Response.ToolCalls) > 0
		s.InputTokens = f.Response.Usage.InputTokens
		s.OutputTokens = f.Response.Usage.OutputTokens
	}
	return s
}

// TotalBytes is the size estimator MemoryStore exposes as an
// observability counter (request body + response body + content +
// thinking byte counts). It does not gate eviction.
func (f *Flow) TotalBytes() int64 {
	var n int64
	n += f.Request.ByteSize
	if f.Response != nil {
		n += f.Response.ByteSize
		n += int64(len(f.Response.Content))
		if f.Response.Thinking != nil {
			n += int64(len(f.Response.Thinking.Text))
		}
	}
	return n
}
