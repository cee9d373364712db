// Package capture implements three of the four ingestion hooks a reverse
// proxy calls as it moves bytes between client and upstream (spec.md
// §4.1): on_request_accepted, on_upstream_response_head and
// on_upstream_chunk. The fourth, on_upstream_complete, is
// finalize.Finalizer.Complete, which takes the Outcome defined here and
// reads the in-flight table through InFlight/Release. A Capturer owns no transport of its own —
// it only turns proxy-observed events into Flow state, MemoryStore
// mutation, and EventBus broadcast.
package capture

import (
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/flowtap/flowcore/pkg/eventbus"
	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/flowtap/flowcore/pkg/memstore"
	"github.com/flowtap/flowcore/pkg/reassemble"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"
)

// RequestDescriptor is everything the proxy observed before any bytes
// reached the upstream, normalized to the shape a Flow's Request block
// wants.
type RequestDescriptor struct {
	Method         string
	Path           string
	Headers        []flow.HeaderPair
	Messages       []flow.Message
	System         string
	Tools          []flow.ToolDefinition
	Model          string
	OriginalModel  string
	Params         flow.Parameters
	RawBody        any
	ByteSize       int64
	Provider       string
	CredentialID   string
	Client         flow.ClientInfo
	Routing        flow.RoutingInfo
	Dialect        reassemble.Dialect
}

// Outcome is the terminal disposition passed to on_upstream_complete.
type Outcome struct {
	OK        bool
	ErrorKind string
	Message   string
	Status    *int
	RawBody   string
	Cancelled bool
}

// Options configures sampling and body caps; zero-value Options selects
// reassemble.DefaultLimits and unconditional capture.
type Options struct {
	Limits     reassemble.Limits
	SampleRate float64 // 0 disables sampling gating entirely; 1.0 = capture everything
}

type active struct {
	flow    *flow.Flow
	machine reassemble.Machine
	sampled bool
}

// Capturer implements the first three capture hooks against a shared
// MemoryStore and EventBus. One Capturer is typically process-wide.
type Capturer struct {
	mem     *memstore.Store
	bus     *eventbus.Bus
	opts    Options
	limiter *rate.Limiter
	logger  *log.Logger

	mu       sync.Mutex
	inFlight map[ulid.ULID]*active
	entropy  *rand.Rand
	idSource *ulid.MonotonicEntropy
}

// New constructs a Capturer. logger may be nil, in which case a default
// stderr logger is used.
func New(mem *memstore.Store, bus *eventbus.Bus, opts Options, logger *log.Logger) *Capturer {
	if opts.Limits.MaxResponseBytes == 0 && opts.Limits.MaxRequestBytes == 0 {
		opts.Limits = reassemble.DefaultLimits
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 1.0
	}
	if logger == nil {
		logger = log.New(os.Stderr, "flowcore: ", log.LstdFlags)
	}
	return &Capturer{
		mem:      mem,
		bus:      bus,
		opts:     opts,
		logger:   logger,
		inFlight: make(map[ulid.ULID]*active),
		entropy:  rand.New(rand.NewSource(time.Now().UnixNano())),
		idSource: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano() + 1)), 0),
	}
}

// sampled decides, once per Flow, whether this Flow is fully captured
// or (when sampling excludes it) tracked only as an Intercepted
// placeholder with no body retention.
func (c *Capturer) sampled() bool {
	if c.opts.SampleRate >= 1.0 {
		return true
	}
	if c.opts.SampleRate <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entropy.Float64() < c.opts.SampleRate
}

// OnRequestAccepted constructs a Flow in Pending, installs it in
// MemoryStore, and emits FlowStarted. Returns the new Flow id.
func (c *Capturer) OnRequestAccepted(desc RequestDescriptor, now time.Time) ulid.ULID {
	id := ulid.MustNew(ulid.Timestamp(now), c.idSource)

	req := flow.Request{
		Method:        desc.Method,
		Path:          desc.Path,
		Headers:       desc.Headers,
		RawBody:       desc.RawBody,
		Messages:      desc.Messages,
		System:        desc.System,
		Tools:         desc.Tools,
		Model:         desc.Model,
		OriginalModel: desc.OriginalModel,
		Params:        desc.Params,
		ByteSize:      desc.ByteSize,
		CreatedAt:     now,
	}

	f := flow.New(id, req, now)
	f.Metadata = flow.Metadata{
		Provider:     desc.Provider,
		CredentialID: desc.CredentialID,
		Client:       desc.Client,
		Routing:      desc.Routing,
	}
	f.Timestamps.RequestStart = &now

	sampled := c.sampled()
	if !sampled {
		f.State = flow.StateIntercepted
	}

	c.mem.Insert(f)

	a := &active{flow: f, sampled: sampled}
	if sampled {
		a.machine = reassemble.New(desc.Dialect, c.opts.Limits)
	}
	c.mu.Lock()
	c.inFlight[id] = a
	c.mu.Unlock()

	c.bus.Publish(eventbus.Event{Kind: eventbus.KindFlowStarted, FlowID: id.String(), Summary: summaryPtr(f)})
	return id
}

// OnUpstreamResponseHead populates the Response head fields and records
// response_start/ttfb_ms. Unknown flow ids are dropped and logged.
func (c *Capturer) OnUpstreamResponseHead(id ulid.ULID, status int, headers []flow.HeaderPair, now time.Time) {
	a, ok := c.lookup(id)
	if !ok {
		c.logger.Printf("on_upstream_response_head: unknown flow id %s", id)
		return
	}
	f := a.flow
	f.Response = &flow.Response{StatusCode: status, Headers: headers, StartedAt: now}
	f.Timestamps.ResponseStart = &now
	if f.Timestamps.RequestStart != nil {
		ttfb := now.Sub(*f.Timestamps.RequestStart).Milliseconds()
		f.Timestamps.TTFBMs = &ttfb
	}
	if f.State != flow.StateIntercepted {
		f.Transition(flow.StateStreaming, now)
	}
}

// OnUpstreamChunk forwards raw_bytes to the Reassembler and may emit a
// FlowUpdated summary event. Unknown flow ids are dropped and logged.
func (c *Capturer) OnUpstreamChunk(id ulid.ULID, raw []byte, now time.Time) {
	a, ok := c.lookup(id)
	if !ok {
		c.logger.Printf("on_upstream_chunk: unknown flow id %s", id)
		return
	}
	if !a.sampled || a.machine == nil {
		return
	}

	deltas, _, err := a.machine.Feed(raw)
	if err != nil {
		c.logger.Printf("flow %s: reassembler error: %v", id, err)
		return
	}
	if len(deltas) == 0 {
		return
	}

	var contentSoFar string
	chunkCount := 0
	for _, d := range deltas {
		if d.Kind == reassemble.DeltaContent {
			contentSoFar += d.Text
			chunkCount++
		}
	}
	c.bus.Publish(eventbus.Event{
		Kind:   eventbus.KindFlowUpdated,
		FlowID: id.String(),
		Update: &eventbus.PartialUpdate{ContentSoFar: contentSoFar, ChunkCount: chunkCount},
	})
}

// InFlight returns the Flow and Machine tracked for id, if any. The
// Finalizer uses this to seal and persist on completion.
func (c *Capturer) InFlight(id ulid.ULID) (*flow.Flow, reassemble.Machine, bool) {
	a, ok := c.lookup(id)
	if !ok {
		return nil, nil, false
	}
	return a.flow, a.machine, true
}

// Release drops id from the in-flight table. Called by the Finalizer
// once a Flow has reached a terminal state.
func (c *Capturer) Release(id ulid.ULID) {
	c.mu.Lock()
	delete(c.inFlight, id)
	c.mu.Unlock()
}

func (c *Capturer) lookup(id ulid.ULID) (*active, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.inFlight[id]
	return a, ok
}

func summaryPtr(f *flow.Flow) *flow.Summary {
	s := f.ToSummary()
	return &s
}
