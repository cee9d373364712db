// Package threshold implements the Flow-finalization rule check of
// spec.md §4.9: compare a sealed Flow's measurements against configured
// limits and emit at most one warning per Flow id.
package threshold

import (
	"sync"

	"github.com/flowtap/flowcore/pkg/eventbus"
	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/oklog/ulid/v2"
)

// Rules holds the four configurable limits. A zero value means
// "disabled" for that field.
type Rules struct {
	LatencyLimitMs int64
	TotalLimit     int64
	InputLimit     int64
	OutputLimit    int64
}

// Monitor evaluates Rules against finalized Flows and returns the
// eventbus.Warning payload; the caller (the Finalizer) publishes it as a
// ThresholdWarning event. It is idempotent per Flow id: a second
// Evaluate call for the same id is a no-op, matching spec.md's "exactly
// one ThresholdWarning per Flow". The set of evaluated ids is never
// pruned.
type Monitor struct {
	rules     Rules
	mu        sync.Mutex
	evaluated map[ulid.ULID]struct{}
}

// New constructs a Monitor with the given rule set.
func New(rules Rules) *Monitor {
	return &Monitor{rules: rules, evaluated: make(map[ulid.ULID]struct{})}
}

// Evaluate checks f against the configured rules and returns the
// warning payload if any rule tripped, or nil otherwise. Calling it a
// second time for the same Flow id always returns nil.
func (m *Monitor) Evaluate(f *flow.Flow) *eventbus.Warning {
	m.mu.Lock()
	if _, seen := m.evaluated[f.ID]; seen {
		m.mu.Unlock()
		return nil
	}
	m.evaluated[f.ID] = struct{}{}
	m.mu.Unlock()

	var durationMs, totalTokens, inputTokens, outputTokens int64
	if f.Timestamps.DurationMs != nil {
		durationMs = *f.Timestamps.DurationMs
	}
	if f.Response != nil {
		if f.Response.Usage.TotalTokens != nil {
			totalTokens = *f.Response.Usage.TotalTokens
		}
		if f.Response.Usage.InputTokens != nil {
			inputTokens = *f.Response.Usage.InputTokens
		}
		if f.Response.Usage.OutputTokens != nil {
			outputTokens = *f.Response.Usage.OutputTokens
		}
	}

	w := eventbus.Warning{
		FlowID:               f.ID.String(),
		LatencyExceeded:      tripped(m.rules.LatencyLimitMs, durationMs),
		TotalTokensExceeded:  tripped(m.rules.TotalLimit, totalTokens),
		InputTokensExceeded:  tripped(m.rules.InputLimit, inputTokens),
		OutputTokensExceeded: tripped(m.rules.OutputLimit, outputTokens),
		DurationMs:           durationMs,
		TotalTokens:          totalTokens,
		InputTokens:          inputTokens,
		OutputTokens:         outputTokens,
	}
	if !w.LatencyExceeded && !w.TotalTokensExceeded && !w.InputTokensExceeded && !w.OutputTokensExceeded {
		return nil
	}
	return &w
}

func tripped(limit, actual int64) bool {
	if limit <= 0 {
		return false
	}
	return actual >= limit
}
