package memstore

import (
	"math/rand"
	"testing"
	"time"

	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkFlow(t *testing.T, ms int64, state flow.State) *flow.Flow {
	t.Helper()
	entropy := rand.New(rand.NewSource(ms))
	id, err := ulid.New(uint64(ms), entropy)
	require.NoError(t, err)
	f := flow.New(id, flow.Request{Model: "gpt-4"}, time.UnixMilli(ms))
	f.State = state
	return f
}

func TestScenario4MemoryEviction(t *testing.T) {
	s := New(3)
	a := mkFlow(t, 1000, flow.StateCompleted)
	b := mkFlow(t, 2000, flow.StateCompleted)
	c := mkFlow(t, 3000, flow.StateCompleted)
	d := mkFlow(t, 4000, flow.StateCompleted)

	s.Insert(a)
	s.Insert(b)
	s.Insert(c)
	s.Insert(d)

	assert.Nil(t, s.Get(a.ID), "oldest terminal flow should be evicted")
	assert.NotNil(t, s.Get(b.ID))
	assert.NotNil(t, s.Get(c.ID))
	assert.NotNil(t, s.Get(d.ID))

	stats := s.Stats()
	assert.Equal(t, 3, stats.Count)
	assert.EqualValues(t, 1, stats.EvictedCount)
}

func TestNonTerminalFlowsNeverEvicted(t *testing.T) {
	s := New(1)
	pending := mkFlow(t, 1000, flow.StatePending)
	done1 := mkFlow(t, 2000, flow.StateCompleted)
	done2 := mkFlow(t, 3000, flow.StateCompleted)

	s.Insert(pending)
	s.Insert(done1)
	s.Insert(done2)

	assert.NotNil(t, s.Get(pending.ID))
	assert.Nil(t, s.Get(done1.ID))
	assert.NotNil(t, s.Get(done2.ID))
}

func TestListReverseChronological(t *testing.T) {
	s := New(10)
	ids := []*flow.Flow{
		mkFlow(t, 1000, flow.StateCompleted),
		mkFlow(t, 2000, flow.StateCompleted),
		mkFlow(t, 3000, flow.StateCompleted),
	}
	for _, f := range ids {
		s.Insert(f)
	}
	list := s.List(0, 2)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2].ID, list[0].ID)
	assert.Equal(t, ids[1].ID, list[1].ID)
}
