package command

import (
	"context"
	"testing"
	"time"

	"github.com/flowtap/flowcore/pkg/entities"
	"github.com/flowtap/flowcore/pkg/eventbus"
	"github.com/flowtap/flowcore/pkg/export"
	"github.com/flowtap/flowcore/pkg/filestore"
	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/flowtap/flowcore/pkg/memstore"
	"github.com/flowtap/flowcore/pkg/query"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	files, err := filestore.Open(filestore.Options{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { files.Close() })

	mem := memstore.New(10)
	bus := eventbus.New(16)
	q := query.New(mem, files)
	ents := entities.New()
	return New(q, mem, files, bus, ents, nil)
}

func insertFlow(t *testing.T, d *Dispatcher, model string, state flow.State) *flow.Flow {
	t.Helper()
	id := ulid.Make()
	f := &flow.Flow{
		ID:    id,
		State: state,
		Request: flow.Request{
			Model:    model,
			Messages: []flow.Message{{Role: flow.RoleUser, Content: flow.MessageContent{Text: "hi"}}},
		},
		Timestamps: flow.Timestamps{Created: time.Now()},
	}
	d.Mem.Insert(f)
	return f
}

func TestQueryFlowsFiltersByParsedExpression(t *testing.T) {
	d := newDispatcher(t)
	insertFlow(t, d, "gpt-4", flow.StateCompleted)
	insertFlow(t, d, "claude-3", flow.StateCompleted)

	res, err := d.QueryFlows(context.Background(), QueryFlowsRequest{Filter: `~m gpt-4`, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, res.Flows, 1)
	assert.Equal(t, "gpt-4", res.Flows[0].Request.Model)
}

func TestQueryFlowsRejectsBadFilterSyntax(t *testing.T) {
	d := newDispatcher(t)
	_, err := d.QueryFlows(context.Background(), QueryFlowsRequest{Filter: `~m`})
	assert.Error(t, err)
}

func TestParseFilterReportsValidityAndCanonicalForm(t *testing.T) {
	d := newDispatcher(t)
	ok := d.ParseFilter(`~m gpt-4 & ~e`)
	assert.True(t, ok.Valid)
	assert.NotEmpty(t, ok.Expr)

	bad := d.ParseFilter(`not a real filter (`)
	assert.False(t, bad.Valid)
	assert.NotEmpty(t, bad.Error)
}

func TestGetFlowDetailReturnsNilForUnknownID(t *testing.T) {
	d := newDispatcher(t)
	f, err := d.GetFlowDetail(context.Background(), ulid.Make())
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestToggleFlowStarFlipsAnnotation(t *testing.T) {
	d := newDispatcher(t)
	f := insertFlow(t, d, "gpt-4", flow.StateCompleted)

	require.NoError(t, d.ToggleFlowStar(f.ID))
	assert.True(t, d.Mem.Get(f.ID).Annotations.Starred)

	require.NoError(t, d.ToggleFlowStar(f.ID))
	assert.False(t, d.Mem.Get(f.ID).Annotations.Starred)
}

func TestToggleFlowStarUnknownIDReturnsError(t *testing.T) {
	d := newDispatcher(t)
	err := d.ToggleFlowStar(ulid.Make())
	assert.Error(t, err)
}

func TestBatchAddAndRemoveTags(t *testing.T) {
	d := newDispatcher(t)
	a := insertFlow(t, d, "gpt-4", flow.StateCompleted)
	b := insertFlow(t, d, "gpt-4", flow.StateCompleted)

	res := d.BatchAddTags([]ulid.ULID{a.ID, b.ID}, []string{"slow"})
	assert.Equal(t, 2, res.Success)
	assert.True(t, d.Mem.Get(a.ID).Annotations.HasTag("slow"))

	res = d.BatchRemoveTags([]ulid.ULID{a.ID}, []string{"slow"})
	assert.Equal(t, 1, res.Success)
	assert.False(t, d.Mem.Get(a.ID).Annotations.HasTag("slow"))
	assert.True(t, d.Mem.Get(b.ID).Annotations.HasTag("slow"))
}

func TestBatchDeleteReportsPerIDOutcome(t *testing.T) {
	d := newDispatcher(t)
	f := insertFlow(t, d, "gpt-4", flow.StateCompleted)
	missing := ulid.Make()

	res := d.BatchDelete([]ulid.ULID{f.ID, missing})
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Nil(t, d.Mem.Get(f.ID))
}

func TestExportFlowsByIDsProducesJSON(t *testing.T) {
	d := newDispatcher(t)
	f := insertFlow(t, d, "gpt-4", flow.StateCompleted)

	res, err := d.ExportFlows(context.Background(), ExportFlowsRequest{
		IDs:     []ulid.ULID{f.ID},
		Options: export.Options{Format: export.FormatJSON},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Contains(t, string(res.ExportData), "gpt-4")
}

func TestReplayFlowWithoutReplayerFails(t *testing.T) {
	d := newDispatcher(t)
	f := insertFlow(t, d, "gpt-4", flow.StateCompleted)

	_, err := d.ReplayFlow(context.Background(), f.ID, flow.Request{})
	assert.Error(t, err)
}

func TestReplayFlowCallsInjectedReplayerWithMergedModel(t *testing.T) {
	d := newDispatcher(t)
	f := insertFlow(t, d, "gpt-4", flow.StateCompleted)

	var sentModel string
	d.Replay = func(ctx context.Context, req flow.Request) (*flow.Response, error) {
		sentModel = req.Model
		return &flow.Response{Content: "replayed"}, nil
	}

	res, err := d.ReplayFlow(context.Background(), f.ID, flow.Request{Model: "gpt-4-turbo"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4-turbo", sentModel)
	assert.Equal(t, "replayed", res.Response.Content)
}

func TestBatchReplayFlowsAggregatesPerIDResults(t *testing.T) {
	d := newDispatcher(t)
	a := insertFlow(t, d, "gpt-4", flow.StateCompleted)
	b := insertFlow(t, d, "claude-3", flow.StateCompleted)
	missing := ulid.Make()

	d.Replay = func(ctx context.Context, req flow.Request) (*flow.Response, error) {
		return &flow.Response{Content: "replayed:" + req.Model}, nil
	}

	res, err := d.BatchReplayFlows(context.Background(), []ulid.ULID{a.ID, b.ID, missing}, flow.Request{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, res.Results, 3)
}

func TestImportAndExportQuickFilterRoundTrip(t *testing.T) {
	d := newDispatcher(t)

	imported, err := d.ImportQuickFilter("errors", "~e")
	require.NoError(t, err)

	exported, err := d.ExportQuickFilter(imported.ID)
	require.NoError(t, err)
	assert.Equal(t, "errors", exported.Name)
	assert.Equal(t, "~e", exported.Expression)
}

func TestExportQuickFilterUnknownIDReturnsError(t *testing.T) {
	d := newDispatcher(t)
	_, err := d.ExportQuickFilter(uuid.New())
	assert.Error(t, err)
}

func TestSessionCRUDAndBatchAddToSession(t *testing.T) {
	d := newDispatcher(t)
	f := insertFlow(t, d, "gpt-4", flow.StateCompleted)

	s := d.CreateSession("debug pass")
	require.NotNil(t, s)

	updated, err := d.BatchAddToSession(s.ID, []ulid.ULID{f.ID})
	require.NoError(t, err)
	assert.Contains(t, updated.FlowIDs, f.ID.String())

	require.NoError(t, d.DeleteSession(s.ID))
	assert.Empty(t, d.ListSessions())
}

func TestSaveQuickFilterRejectsInvalidExpression(t *testing.T) {
	d := newDispatcher(t)
	_, err := d.SaveQuickFilter("broken", "not a real filter (")
	assert.Error(t, err)
}

func TestNotificationConfigRoundTrips(t *testing.T) {
	d := newDispatcher(t)
	cfg := d.GetNotificationConfig()
	cfg.DesktopEnabled = true
	d.UpdateNotificationConfig(cfg)
	assert.True(t, d.GetNotificationConfig().DesktopEnabled)
}

func TestSubscribeFlowEventsReceivesPublishedEvent(t *testing.T) {
	d := newDispatcher(t)
	h := d.SubscribeFlowEvents()
	defer d.UnsubscribeFlowEvents(h)

	d.Bus.Publish(eventbus.Event{Kind: eventbus.KindFlowStarted, FlowID: "flow-1"})
	events := d.Bus.Drain(h)
	require.Len(t, events, 1)
	assert.Equal(t, "flow-1", events[0].FlowID)
}
