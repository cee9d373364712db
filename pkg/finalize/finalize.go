// Package finalize implements the Finalizer (spec.md §4.3): the hook
// that moves a Flow to a terminal state, seals its stream, evaluates
// threshold rules, publishes the terminal EventBus event, and hands the
// Flow to FileStore for durable persistence — all without blocking the
// caller on disk I/O.
package finalize

import (
	"time"

	"github.com/flowtap/flowcore/pkg/capture"
	"github.com/flowtap/flowcore/pkg/eventbus"
	"github.com/flowtap/flowcore/pkg/filestore"
	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/flowtap/flowcore/pkg/flowerr"
	"github.com/flowtap/flowcore/pkg/threshold"
	"github.com/oklog/ulid/v2"
)

// Finalizer wires the Capturer's in-flight table to the threshold
// monitor, EventBus, and FileStore.
type Finalizer struct {
	capturer  *capture.Capturer
	bus       *eventbus.Bus
	files     *filestore.Store
	monitor   *threshold.Monitor
}

// New constructs a Finalizer. monitor may be nil, in which case
// threshold evaluation is skipped entirely.
func New(capturer *capture.Capturer, bus *eventbus.Bus, files *filestore.Store, monitor *threshold.Monitor) *Finalizer {
	return &Finalizer{capturer: capturer, bus: bus, files: files, monitor: monitor}
}

// Complete implements on_upstream_complete: it seals the Reassembler
// (for ok outcomes), transitions the Flow to its terminal state,
// evaluates thresholds, publishes the terminal event, and enqueues the
// Flow for FileStore persistence. Persistence is always attempted, even
// for error and cancelled outcomes.
func (fz *Finalizer) Complete(id ulid.ULID, outcome capture.Outcome, now time.Time) {
	f, machine, ok := fz.capturer.InFlight(id)
	if !ok {
		return
	}
	defer fz.capturer.Release(id)

	switch {
	case outcome.Cancelled:
		fz.finalizeCancelled(f, machine, now)
	case !outcome.OK:
		fz.finalizeError(f, machine, outcome, now)
	default:
		fz.finalizeOK(f, machine, now)
	}

	fz.enqueuePersist(f)
}

func (fz *Finalizer) finalizeOK(f *flow.Flow, machine interface{ Seal() *flow.Response }, now time.Time) {
	if machine != nil {
		sealFlowResponse(f, machine)
	}
	f.Finalize(flow.StateCompleted, now)

	warning := fz.evaluate(f)
	fz.bus.Publish(eventbus.Event{
		Kind:   eventbus.KindFlowCompleted,
		FlowID: f.ID.String(),
		Summary: summaryPtr(f),
	})
	if warning != nil {
		fz.bus.Publish(eventbus.Event{Kind: eventbus.KindThresholdWarning, FlowID: f.ID.String(), Warning: warning})
	}
}

func (fz *Finalizer) finalizeError(f *flow.Flow, machine interface{ Seal() *flow.Response }, outcome capture.Outcome, now time.Time) {
	if machine != nil {
		sealFlowResponse(f, machine)
	}
	kind := outcome.ErrorKind
	if kind == "" {
		if outcome.Status != nil {
			kind = string(flowerr.StatusToKind(*outcome.Status))
		} else {
			kind = string(flowerr.KindServerError)
		}
	}
	f.Error = &flow.FlowError{
		Kind:      kind,
		Message:   outcome.Message,
		Status:    outcome.Status,
		RawBody:   outcome.RawBody,
		Timestamp: now,
	}
	f.Finalize(flow.StateFailed, now)

	fz.bus.Publish(eventbus.Event{
		Kind:      eventbus.KindFlowFailed,
		FlowID:    f.ID.String(),
		Summary:   summaryPtr(f),
		FlowError: f.Error,
	})
}

func (fz *Finalizer) finalizeCancelled(f *flow.Flow, machine interface{ Seal() *flow.Response }, now time.Time) {
	// The Reassembler's partial buffers are discarded; whatever was
	// sealed (if anything) is not trusted as a complete Response.
	_ = machine
	f.Finalize(flow.StateCancelled, now)
	fz.bus.Publish(eventbus.Event{Kind: eventbus.KindFlowFailed, FlowID: f.ID.String(), Summary: summaryPtr(f)})
}

// sealFlowResponse merges a Machine's sealed Response (content, tool
// calls, usage, stream timing) onto f.Response, preserving the head
// fields (status code, headers, startedAt) on_upstream_response_head
// already recorded. If no head was ever observed (a unary, non-
// streaming completion), the sealed Response is adopted as-is.
func sealFlowResponse(f *flow.Flow, machine interface{ Seal() *flow.Response }) {
	sealed := machine.Seal()
	sealed.Usage.Reconcile()
	if f.Response == nil {
		f.Response = sealed
		return
	}
	f.Response.Content = sealed.Content
	f.Response.Thinking = sealed.Thinking
	f.Response.ToolCalls = sealed.ToolCalls
	f.Response.Usage = sealed.Usage
	f.Response.StopReason = sealed.StopReason
	f.Response.Stream = sealed.Stream
	f.Response.EndedAt = sealed.EndedAt
	f.Response.ByteSize = int64(len(sealed.Content))
}

func (fz *Finalizer) evaluate(f *flow.Flow) *eventbus.Warning {
	if fz.monitor == nil {
		return nil
	}
	return fz.monitor.Evaluate(f)
}

func (fz *Finalizer) enqueuePersist(f *flow.Flow) {
	if fz.files == nil {
		return
	}
	fz.files.Enqueue(f)
}

func summaryPtr(f *flow.Flow) *flow.Summary {
	s := f.ToSummary()
	return &s
}
