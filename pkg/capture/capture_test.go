package capture

import (
	"testing"
	"time"

	"github.com/flowtap/flowcore/pkg/eventbus"
	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/flowtap/flowcore/pkg/memstore"
	"github.com/flowtap/flowcore/pkg/reassemble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapturer(t *testing.T) (*Capturer, *memstore.Store, *eventbus.Bus) {
	t.Helper()
	mem := memstore.New(10)
	bus := eventbus.New(16)
	c := New(mem, bus, Options{}, nil)
	return c, mem, bus
}

func TestOnRequestAcceptedInsertsPendingFlowAndEmitsStarted(t *testing.T) {
	c, mem, bus := newCapturer(t)
	h := bus.Subscribe()

	id := c.OnRequestAccepted(RequestDescriptor{
		Method:   "POST",
		Path:     "/v1/chat/completions",
		Model:    "gpt-4",
		Provider: "openai",
		Dialect:  reassemble.DialectOpenAI,
	}, time.Now())

	f := mem.Get(id)
	require.NotNil(t, f)
	assert.Equal(t, flow.StatePending, f.State)

	events := bus.Drain(h)
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.KindFlowStarted, events[0].Kind)
}

func TestOnUpstreamChunkEmitsUpdatedOnContentDelta(t *testing.T) {
	c, _, bus := newCapturer(t)
	h := bus.Subscribe()

	id := c.OnRequestAccepted(RequestDescriptor{Model: "gpt-4", Provider: "openai", Dialect: reassemble.DialectOpenAI}, time.Now())
	bus.Drain(h) // discard FlowStarted

	c.OnUpstreamResponseHead(id, 200, nil, time.Now())
	c.OnUpstreamChunk(id, []byte(`data: {"choices":[{"delta":{"content":"hi"},"finish_reason":null}]}`+"\n\n"), time.Now())

	events := bus.Drain(h)
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.KindFlowUpdated, events[0].Kind)
	assert.Equal(t, "hi", events[0].Update.ContentSoFar)
}

func TestUnknownFlowIDHooksAreDroppedNotPanicking(t *testing.T) {
	c, _, _ := newCapturer(t)
	var unknown [16]byte
	assert.NotPanics(t, func() {
		c.OnUpstreamResponseHead(unknown, 200, nil, time.Now())
		c.OnUpstreamChunk(unknown, []byte("x"), time.Now())
	})
}

func TestNegativeSampleRateMarksIntercepted(t *testing.T) {
	mem := memstore.New(10)
	bus := eventbus.New(16)
	c := New(mem, bus, Options{SampleRate: -1.0}, nil)

	id := c.OnRequestAccepted(RequestDescriptor{Model: "gpt-4", Provider: "openai"}, time.Now())
	f := mem.Get(id)
	require.NotNil(t, f)
	assert.Equal(t, flow.StateIntercepted, f.State)

	_, machine, ok := c.InFlight(id)
	require.True(t, ok)
	assert.Nil(t, machine)
}
