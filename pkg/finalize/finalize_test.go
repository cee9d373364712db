package finalize

import (
	"testing"
	"time"

	"github.com/flowtap/flowcore/pkg/capture"
	"github.com/flowtap/flowcore/pkg/eventbus"
	"github.com/flowtap/flowcore/pkg/filestore"
	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/flowtap/flowcore/pkg/memstore"
	"github.com/flowtap/flowcore/pkg/reassemble"
	"github.com/flowtap/flowcore/pkg/threshold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*capture.Capturer, *Finalizer, *eventbus.Bus, *filestore.Store) {
	t.Helper()
	mem := memstore.New(10)
	bus := eventbus.New(16)
	c := capture.New(mem, bus, capture.Options{}, nil)

	dir := t.TempDir()
	files, err := filestore.Open(filestore.Options{Root: dir})
	require.NoError(t, err)
	t.Cleanup(func() { files.Close() })

	fz := New(c, bus, files, threshold.New(threshold.Rules{}))
	return c, fz, bus, files
}

func TestCompleteOKSealsReassemblerAndEmitsCompleted(t *testing.T) {
	c, fz, bus, _ := setup(t)
	h := bus.Subscribe()

	id := c.OnRequestAccepted(capture.RequestDescriptor{Model: "gpt-4", Provider: "openai", Dialect: reassemble.DialectOpenAI}, time.Now())
	bus.Drain(h)

	c.OnUpstreamResponseHead(id, 200, nil, time.Now())
	c.OnUpstreamChunk(id, []byte(`data: {"choices":[{"delta":{"content":"Hello"},"finish_reason":"stop"}]}`+"\n\ndata: [DONE]\n\n"), time.Now())
	bus.Drain(h)

	fz.Complete(id, capture.Outcome{OK: true}, time.Now())

	events := bus.Drain(h)
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.KindFlowCompleted, events[0].Kind)
	assert.Equal(t, "Hello", events[0].Summary.ContentPreview)

	_, _, ok := c.InFlight(id)
	assert.False(t, ok)
}

func TestCompleteErrorPopulatesErrorBlockAndEmitsFailed(t *testing.T) {
	c, fz, bus, files := setup(t)
	h := bus.Subscribe()

	id := c.OnRequestAccepted(capture.RequestDescriptor{Model: "gpt-4", Provider: "openai", Dialect: reassemble.DialectOpenAI}, time.Now())
	bus.Drain(h)

	status := 429
	fz.Complete(id, capture.Outcome{OK: false, ErrorKind: "rate_limit", Message: "too many requests", Status: &status}, time.Now())

	events := bus.Drain(h)
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.KindFlowFailed, events[0].Kind)
	require.NotNil(t, events[0].FlowError)
	assert.Equal(t, "rate_limit", events[0].FlowError.Kind)

	_ = files
}

func TestCompleteCancelledMarksCancelledAndReleases(t *testing.T) {
	c, fz, bus, _ := setup(t)
	h := bus.Subscribe()

	id := c.OnRequestAccepted(capture.RequestDescriptor{Model: "gpt-4", Provider: "openai", Dialect: reassemble.DialectOpenAI}, time.Now())
	bus.Drain(h)
	tracked, _, ok := c.InFlight(id)
	require.True(t, ok)

	fz.Complete(id, capture.Outcome{Cancelled: true}, time.Now())
	assert.Equal(t, flow.StateCancelled, tracked.State)

	f, _, ok := c.InFlight(id)
	assert.False(t, ok)
	assert.Nil(t, f)
}

func TestThresholdWarningEmittedOnLatencyBreach(t *testing.T) {
	mem := memstore.New(10)
	bus := eventbus.New(16)
	c := capture.New(mem, bus, capture.Options{}, nil)
	dir := t.TempDir()
	files, err := filestore.Open(filestore.Options{Root: dir})
	require.NoError(t, err)
	defer files.Close()

	fz := New(c, bus, files, threshold.New(threshold.Rules{LatencyLimitMs: 1}))
	h := bus.Subscribe()

	past := time.Now().Add(-time.Hour)
	id := c.OnRequestAccepted(capture.RequestDescriptor{Model: "gpt-4", Provider: "openai", Dialect: reassemble.DialectOpenAI}, past)
	bus.Drain(h)

	fz.Complete(id, capture.Outcome{OK: true}, time.Now())

	events := bus.Drain(h)
	require.Len(t, events, 2)
	assert.Equal(t, eventbus.KindFlowCompleted, events[0].Kind)
	assert.Equal(t, eventbus.KindThresholdWarning, events[1].Kind)
	assert.True(t, events[1].Warning.LatencyExceeded)
}
