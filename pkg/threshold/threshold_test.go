package threshold

import (
	"math/rand"
	"testing"
	"time"

	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlow(t *testing.T, durationMs, totalTokens int64) *flow.Flow {
	t.Helper()
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	require.NoError(t, err)
	f := flow.New(id, flow.Request{}, time.Now())
	f.Timestamps.DurationMs = &durationMs
	tot := totalTokens
	f.Response = &flow.Response{Usage: flow.Usage{TotalTokens: &tot}}
	return f
}

func TestDisabledRulesNeverTrip(t *testing.T) {
	m := New(Rules{})
	f := newFlow(t, 99999, 99999)
	assert.Nil(t, m.Evaluate(f))
}

func TestLatencyRuleTrips(t *testing.T) {
	m := New(Rules{LatencyLimitMs: 1000})
	f := newFlow(t, 1500, 0)
	w := m.Evaluate(f)
	require.NotNil(t, w)
	assert.True(t, w.LatencyExceeded)
	assert.False(t, w.TotalTokensExceeded)
}

func TestIdempotentPerFlowID(t *testing.T) {
	m := New(Rules{TotalLimit: 10})
	f := newFlow(t, 0, 100)
	first := m.Evaluate(f)
	require.NotNil(t, first)
	second := m.Evaluate(f)
	assert.Nil(t, second)
}
