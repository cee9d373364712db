package flow

import "time"

// transitions is the lattice from spec.md §3. A missing entry means
// "no further transitions" (the terminal states and Intercepted).
var transitions = map[State][]State{
	StatePending:   {StateStreaming, StateFailed, StateCancelled, StateIntercepted},
	StateStreaming: {StateCompleted, StateFailed, StateCancelled},
}

// CanTransition reports whether moving from s to next is legal under
// the Flow state lattice.
func CanTransition(s, next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition moves f to next, recomputing DurationMs; it leaves a Flow
// that is already terminal unchanged. Finalize is the way to reach a
// terminal state; callers that bypass both (direct field assignment)
// break the monotone-duration invariant.
func (f *Flow) Transition(next State, now time.Time) {
	if !f.State.Terminal() {
		f.State = next
	}
	f.touchDuration(now)
}

// touchDuration recomputes DurationMs while non-terminal and freezes it
// once the Flow reaches a terminal state, per the invariant in spec.md §3.
func (f *Flow) touchDuration(now time.Time) {
	if f.State.Terminal() {
		return
	}
	d := now.Sub(f.Timestamps.Created).Milliseconds()
	if f.Timestamps.DurationMs == nil || d > *f.Timestamps.DurationMs {
		f.Timestamps.DurationMs = &d
	}
}

// Finalize freezes Timestamps.DurationMs at the final value and records
// ResponseEnd, matching the "frozen once terminal" invariant.
func (f *Flow) Finalize(next State, now time.Time) {
	f.State = next
	f.Timestamps.ResponseEnd = &now
	d := now.Sub(f.Timestamps.Created).Milliseconds()
	f.Timestamps.DurationMs = &d
	if f.Response != nil {
		f.Response.EndedAt = &now
	}
}
