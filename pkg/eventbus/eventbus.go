// Package eventbus multiplexes a single ordered stream of Flow lifecycle
// events to N subscribers, per spec.md §4.8. Delivery is per-subscriber,
// bounded, and at-most-once: a slow reader drops its oldest buffered
// event rather than blocking the publisher, the same trade-off the
// teacher SDK's providerutils/streaming broadcaster makes for its
// fan-out channel.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/flowtap/flowcore/pkg/flow"
)

// Kind discriminates the tagged union of events carried on the bus.
type Kind string

const (
	KindFlowStarted      Kind = "FlowStarted"
	KindFlowUpdated      Kind = "FlowUpdated"
	KindFlowCompleted    Kind = "FlowCompleted"
	KindFlowFailed       Kind = "FlowFailed"
	KindThresholdWarning Kind = "ThresholdWarning"
	KindStatsUpdated     Kind = "StatsUpdated"
)

// Warning is the payload of a ThresholdWarning event.
type Warning struct {
	FlowID             string  `json:"flowId"`
	LatencyExceeded    bool    `json:"latencyExceeded"`
	TotalTokensExceeded bool   `json:"totalTokensExceeded"`
	InputTokensExceeded bool   `json:"inputTokensExceeded"`
	OutputTokensExceeded bool  `json:"outputTokensExceeded"`
	DurationMs         int64  `json:"durationMs"`
	TotalTokens         int64 `json:"totalTokens"`
	InputTokens         int64 `json:"inputTokens"`
	OutputTokens        int64 `json:"outputTokens"`
}

// PartialUpdate is the payload of a FlowUpdated event: a thin delta, not
// a live reference to the Flow (spec.md §9's "shared mutable reference"
// re-architecture note).
type PartialUpdate struct {
	ContentSoFar string `json:"contentSoFar"`
	ChunkCount   int    `json:"chunkCount"`
}

// Event is one item on the bus. Exactly one of the payload fields is
// populated, selected by Kind.
type Event struct {
	Kind      Kind          `json:"kind"`
	FlowID    string        `json:"flowId,omitempty"`
	Summary   *flow.Summary `json:"summary,omitempty"`
	Update    *PartialUpdate `json:"update,omitempty"`
	FlowError *flow.FlowError `json:"error,omitempty"`
	Warning   *Warning      `json:"warning,omitempty"`
}

// DefaultCapacity is the per-subscriber ring size (spec.md §4.8).
const DefaultCapacity = 1024

// Handle identifies a subscription returned by Subscribe.
type Handle uint64

type subscriber struct {
	handle   Handle
	mu       sync.Mutex
	ring     []Event
	head     int // index of oldest item
	size     int
	capacity int
	dropped  int64
	closed   bool
}

func newSubscriber(handle Handle, capacity int) *subscriber {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &subscriber{handle: handle, ring: make([]Event, capacity), capacity: capacity}
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.size == s.capacity {
		// Drop oldest: advance head, overwrite its slot.
		s.ring[s.head] = ev
		s.head = (s.head + 1) % s.capacity
		atomic.AddInt64(&s.dropped, 1)
		return
	}
	idx := (s.head + s.size) % s.capacity
	s.ring[idx] = ev
	s.size++
}

// Drain removes and returns every currently-buffered event, oldest
// first, leaving the ring empty.
func (s *subscriber) Drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, s.size)
	for i := 0; i < s.size; i++ {
		out = append(out, s.ring[(s.head+i)%s.capacity])
	}
	s.head = 0
	s.size = 0
	return out
}

// DropCount reports events this subscriber has lost to backpressure.
func (s *subscriber) DropCount() int64 {
	return atomic.LoadInt64(&s.dropped)
}

// Bus is the shared event multiplexer. The zero value is not usable;
// construct with New.
type Bus struct {
	mu       sync.RWMutex
	subs     map[Handle]*subscriber
	nextID   uint64
	capacity int
}

// New constructs a Bus whose subscribers each get the given ring
// capacity (0 uses DefaultCapacity).
func New(capacity int) *Bus {
	return &Bus{subs: make(map[Handle]*subscriber), capacity: capacity}
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Bus) Subscribe() Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	h := Handle(b.nextID)
	b.subs[h] = newSubscriber(h, b.capacity)
	return h
}

// Unsubscribe removes a subscriber. Idempotent: unsubscribing an
// already-removed or unknown handle is a no-op.
func (b *Bus) Unsubscribe(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[h]; ok {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		delete(b.subs, h)
	}
}

// Publish fans ev out to every current subscriber. Non-blocking:
// full rings drop their oldest entry synchronously instead of stalling
// the publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		s.push(ev)
	}
}

// Drain returns and clears the buffered events for handle h, or nil if
// h is unknown.
func (b *Bus) Drain(h Handle) []Event {
	b.mu.RLock()
	s, ok := b.subs[h]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	return s.Drain()
}

// DropCount reports the cumulative drop count for handle h, or 0 if
// unknown.
func (b *Bus) DropCount(h Handle) int64 {
	b.mu.RLock()
	s, ok := b.subs[h]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	return s.DropCount()
}

// SubscriberCount reports how many subscribers are currently active.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
