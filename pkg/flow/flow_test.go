package flow

import (
	"math/rand"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestID(t *testing.T) ulid.ULID {
	t.Helper()
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	require.NoError(t, err)
	return id
}

func TestNewFlowIsPending(t *testing.T) {
	id := newTestID(t)
	now := time.Now()
	f := New(id, Request{Model: "gpt-4"}, now)

	assert.Equal(t, StatePending, f.State)
	assert.Equal(t, id, f.ID)
	assert.Equal(t, now, f.Timestamps.Created)
	assert.Nil(t, f.Response)
	assert.Nil(t, f.Error)
}

func TestTransitionLattice(t *testing.T) {
	assert.True(t, CanTransition(StatePending, StateStreaming))
	assert.True(t, CanTransition(StatePending, StateFailed))
	assert.True(t, CanTransition(StateStreaming, StateCompleted))
	assert.False(t, CanTransition(StateCompleted, StateStreaming))
	assert.False(t, CanTransition(StatePending, StateCompleted))
}

func TestDurationFreezesOnTerminal(t *testing.T) {
	id := newTestID(t)
	start := time.Now()
	f := New(id, Request{}, start)

	f.touchDuration(start.Add(10 * time.Millisecond))
	first := *f.Timestamps.DurationMs

	f.Finalize(StateCompleted, start.Add(50*time.Millisecond))
	frozen := *f.Timestamps.DurationMs
	assert.Greater(t, frozen, first)

	// Further touches must not move the frozen duration.
	f.touchDuration(start.Add(500 * time.Millisecond))
	assert.Equal(t, frozen, *f.Timestamps.DurationMs)
}

func TestUsageReconcile(t *testing.T) {
	in := int64(10)
	out := int64(5)
	u := Usage{InputTokens: &in, OutputTokens: &out}
	u.Reconcile()
	require.NotNil(t, u.TotalTokens)
	assert.Equal(t, int64(15), *u.TotalTokens)
}

func TestSummaryPreviewTruncates(t *testing.T) {
	id := newTestID(t)
	f := New(id, Request{Model: "gpt-4"}, time.Now())
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	f.Response = &Response{Content: string(long)}

	s := f.ToSummary()
	assert.Len(t, []rune(s.ContentPreview), previewLen)
}

func TestAnnotationsHasTag(t *testing.T) {
	a := Annotations{Tags: []string{"prod", "slow"}}
	assert.True(t, a.HasTag("slow"))
	assert.False(t, a.HasTag("fast"))
}

func TestMaskedHeadersRedactsSensitive(t *testing.T) {
	r := Request{Headers: []HeaderPair{
		{Name: "Authorization", Value: "Bearer secret"},
		{Name: "X-Request-Id", Value: "abc"},
	}}
	masked := r.MaskedHeaders()
	assert.Equal(t, "***", masked[0].Value)
	assert.Equal(t, "abc", masked[1].Value)
	// Original untouched.
	assert.Equal(t, "Bearer secret", r.Headers[0].Value)
}
