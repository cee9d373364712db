package query

import (
	"math/rand"
	"testing"
	"time"

	"github.com/flowtap/flowcore/pkg/filestore"
	"github.com/flowtap/flowcore/pkg/filter"
	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/flowtap/flowcore/pkg/memstore"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlow(t *testing.T, model string, ms int64) *flow.Flow {
	t.Helper()
	entropy := rand.New(rand.NewSource(ms))
	id, err := ulid.New(uint64(ms), entropy)
	require.NoError(t, err)
	f := flow.New(id, flow.Request{Model: model}, time.UnixMilli(ms))
	f.State = flow.StateCompleted
	total := int64(10)
	f.Response = &flow.Response{Content: "hi", Usage: flow.Usage{TotalTokens: &total}}
	return f
}

func TestQueryMemoryOnlyFiltersAndSorts(t *testing.T) {
	mem := memstore.New(10)
	a := newFlow(t, "gpt-4", 1000)
	b := newFlow(t, "claude-3", 2000)
	mem.Insert(a)
	mem.Insert(b)

	dir := t.TempDir()
	files, err := filestore.Open(filestore.Options{Root: dir})
	require.NoError(t, err)
	defer files.Close()

	svc := New(mem, files)
	expr, err := filter.Parse("~m claude*")
	require.NoError(t, err)

	res, err := svc.Query(t.Context(), expr, SortCreatedAt, true, 1, 10)
	require.NoError(t, err)
	require.Len(t, res.Flows, 1)
	assert.Equal(t, b.ID, res.Flows[0].ID)
	assert.Equal(t, 1, res.Total)
}

func TestPaginationBeyondLastPageReturnsEmptyTotalUnchanged(t *testing.T) {
	mem := memstore.New(10)
	mem.Insert(newFlow(t, "gpt-4", 1000))

	dir := t.TempDir()
	files, err := filestore.Open(filestore.Options{Root: dir})
	require.NoError(t, err)
	defer files.Close()

	svc := New(mem, files)
	res, err := svc.Query(t.Context(), nil, SortCreatedAt, true, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Flows)
	assert.Equal(t, 1, res.Total)
}
