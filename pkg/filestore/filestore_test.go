package filestore

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlow(t *testing.T) *flow.Flow {
	t.Helper()
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	require.NoError(t, err)
	f := flow.New(id, flow.Request{Model: "gpt-4"}, time.Now())
	f.State = flow.StateCompleted
	f.Response = &flow.Response{Content: "ok"}
	return f
}

func waitForQueueDrain(t *testing.T, s *Store) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.ch) == 0 {
			time.Sleep(50 * time.Millisecond)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEnqueueAndPointGet(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Root: dir})
	require.NoError(t, err)
	defer s.Close()

	f := newFlow(t)
	s.Enqueue(f)
	waitForQueueDrain(t, s)

	day, found, err := s.Global().DayOf(t.Context(), f.ID.String())
	require.NoError(t, err)
	assert.True(t, found)
	assert.NotEmpty(t, day)
}

func TestScenario6CrashReplayDiscardsTornTail(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Root: dir})
	require.NoError(t, err)

	a, b, c := newFlow(t), newFlow(t), newFlow(t)
	s.Enqueue(a)
	s.Enqueue(b)
	s.Enqueue(c)
	waitForQueueDrain(t, s)
	require.NoError(t, s.Close())

	// Corrupt the third line by truncating its closing brace.
	day := dayString(time.Now())
	shard := filepath.Join(dir, "flows", day, "flows.jsonl")
	data, err := os.ReadFile(shard)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(shard, data[:len(data)-2], 0o644))

	s2, err := Open(Options{Root: dir})
	require.NoError(t, err)
	defer s2.Close()

	assert.EqualValues(t, 1, s2.IndexCorruptCount())

	_, foundA, err := s2.Global().DayOf(t.Context(), a.ID.String())
	require.NoError(t, err)
	assert.True(t, foundA)
	_, foundB, err := s2.Global().DayOf(t.Context(), b.ID.String())
	require.NoError(t, err)
	assert.True(t, foundB)
	_, foundC, err := s2.Global().DayOf(t.Context(), c.ID.String())
	require.NoError(t, err)
	assert.False(t, foundC)
}

func TestRotationOnSizeThreshold(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Root: dir, MaxFileSize: 1})
	require.NoError(t, err)
	defer s.Close()

	f := newFlow(t)
	s.Enqueue(f)
	waitForQueueDrain(t, s)

	day := dayString(time.Now())
	entries, err := os.ReadDir(filepath.Join(dir, "flows", day))
	require.NoError(t, err)
	var sawRotated bool
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".sqlite" && e.Name() != "flows.jsonl" {
			sawRotated = true
		}
	}
	assert.True(t, sawRotated)
}
