// Package command implements the UI-facing command surface of
// spec.md §6: one request/response verb per table row, dispatched
// against a Dispatcher that owns references to the QueryService,
// EventBus, Entities store, and FileStore/MemoryStore the rest of the
// core already built. Every verb returns (result, error); the shell
// layer (cmd/flowcored) reports a returned error as a JSON body of the
// form `{"error": message}`.
package command

import (
	"context"
	"fmt"

	"github.com/flowtap/flowcore/pkg/entities"
	"github.com/flowtap/flowcore/pkg/eventbus"
	"github.com/flowtap/flowcore/pkg/export"
	"github.com/flowtap/flowcore/pkg/filestore"
	"github.com/flowtap/flowcore/pkg/filter"
	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/flowtap/flowcore/pkg/memstore"
	"github.com/flowtap/flowcore/pkg/query"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Replayer re-sends a Flow's Request to its upstream provider. The
// core does not implement providers itself (spec.md §2 Non-goals); the
// shell injects this so replay_flow has something to call.
type Replayer func(ctx context.Context, req flow.Request) (*flow.Response, error)

// Dispatcher implements every verb in spec.md §6's command table.
type Dispatcher struct {
	Query    *query.Service
	Mem      *memstore.Store
	Files    *filestore.Store
	Bus      *eventbus.Bus
	Entities *entities.Store
	Replay   Replayer
}

// New constructs a Dispatcher. Replay may be nil; replay_flow then
// always fails with a "no replayer configured" error.
func New(q *query.Service, mem *memstore.Store, files *filestore.Store, bus *eventbus.Bus, ents *entities.Store, replay Replayer) *Dispatcher {
	return &Dispatcher{Query: q, Mem: mem, Files: files, Bus: bus, Entities: ents, Replay: replay}
}

// QueryFlowsRequest is query_flows's argument shape.
type QueryFlowsRequest struct {
	Filter   string
	SortBy   query.SortField
	Desc     bool
	Page     int
	PageSize int
}

// QueryFlows implements the query_flows verb.
func (d *Dispatcher) QueryFlows(ctx context.Context, req QueryFlowsRequest) (query.Result, error) {
	expr, err := parseOptionalFilter(req.Filter)
	if err != nil {
		return query.Result{}, err
	}
	return d.Query.Query(ctx, expr, req.SortBy, req.Desc, req.Page, req.PageSize)
}

// GetFlowDetail implements get_flow_detail. Returns (nil, nil) if id is
// not found, matching the "Flow or null" response shape.
func (d *Dispatcher) GetFlowDetail(ctx context.Context, id ulid.ULID) (*flow.Flow, error) {
	return d.Query.Get(ctx, id)
}

// SearchFlows implements search_flows.
func (d *Dispatcher) SearchFlows(ctx context.Context, q string, limit int) ([]flow.Summary, error) {
	return d.Query.Search(ctx, q, limit)
}

// GetFlowStatsRequest is get_flow_stats's argument shape.
type GetFlowStatsRequest struct {
	Filter string
}

// GetFlowStats implements get_flow_stats.
func (d *Dispatcher) GetFlowStats(ctx context.Context, req GetFlowStatsRequest) (query.FlowStats, error) {
	expr, err := parseOptionalFilter(req.Filter)
	if err != nil {
		return query.FlowStats{}, err
	}
	return d.Query.Stats(ctx, expr, nil)
}

// GetEnhancedStatsRequest is get_enhanced_stats's argument shape.
type GetEnhancedStatsRequest struct {
	Filter      string
	TimeRange   query.TimeRange
	BucketCount int
}

// GetEnhancedStats implements get_enhanced_stats.
func (d *Dispatcher) GetEnhancedStats(ctx context.Context, req GetEnhancedStatsRequest) (query.EnhancedStats, error) {
	expr, err := parseOptionalFilter(req.Filter)
	if err != nil {
		return query.EnhancedStats{}, err
	}
	bucketCount := req.BucketCount
	if bucketCount <= 0 {
		bucketCount = query.DefaultBuckets
	}
	return d.Query.EnhancedStats(ctx, expr, req.TimeRange, bucketCount)
}

// ParseFilterResult is parse_filter's response shape.
type ParseFilterResult struct {
	Valid bool
	Error string
	Expr  string
}

// ParseFilter implements parse_filter: attempt to parse and validate
// expression, returning the formatted (canonicalized) expression on
// success.
func (d *Dispatcher) ParseFilter(expression string) ParseFilterResult {
	expr, err := filter.Parse(expression)
	if err != nil {
		return ParseFilterResult{Valid: false, Error: err.Error()}
	}
	if err := filter.Validate(expr); err != nil {
		return ParseFilterResult{Valid: false, Error: err.Error()}
	}
	return ParseFilterResult{Valid: true, Expr: filter.Format(expr)}
}

func parseOptionalFilter(expression string) (*filter.Expr, error) {
	if expression == "" {
		return nil, nil
	}
	expr, err := filter.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse_filter: %w", err)
	}
	return expr, nil
}

// ExportFlowsRequest is export_flows's argument shape: exactly one of
// IDs or Filter selects the Flow set.
type ExportFlowsRequest struct {
	IDs     []ulid.ULID
	Filter  string
	Options export.Options
}

// ExportFlows implements export_flows.
func (d *Dispatcher) ExportFlows(ctx context.Context, req ExportFlowsRequest) (export.Result, error) {
	flows, err := d.resolveFlows(ctx, req.IDs, req.Filter)
	if err != nil {
		return export.Result{}, err
	}
	return export.Export(flows, req.Options)
}

func (d *Dispatcher) resolveFlows(ctx context.Context, ids []ulid.ULID, filterExpr string) ([]*flow.Flow, error) {
	if len(ids) > 0 {
		out := make([]*flow.Flow, 0, len(ids))
		for _, id := range ids {
			f, err := d.Query.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if f != nil {
				out = append(out, f)
			}
		}
		return out, nil
	}

	expr, err := parseOptionalFilter(filterExpr)
	if err != nil {
		return nil, err
	}
	res, err := d.Query.Query(ctx, expr, query.SortCreatedAt, true, 1, 1<<20)
	if err != nil {
		return nil, err
	}
	out := make([]*flow.Flow, 0, len(res.Flows))
	for _, s := range res.Flows {
		f, err := d.Query.Get(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if f != nil {
			out = append(out, f)
		}
	}
	return out, nil
}

// UpdateFlowAnnotations implements update_flow_annotations.
func (d *Dispatcher) UpdateFlowAnnotations(id ulid.ULID, annotations flow.Annotations) error {
	ok := d.Mem.MutateAnnotations(id, func(a *flow.Annotations) { *a = annotations })
	if !ok {
		return fmt.Errorf("update_flow_annotations: flow %s not found in memory", id)
	}
	return nil
}

// ToggleFlowStar implements toggle_flow_star.
func (d *Dispatcher) ToggleFlowStar(id ulid.ULID) error {
	ok := d.Mem.MutateAnnotations(id, func(a *flow.Annotations) { a.Starred = !a.Starred })
	if !ok {
		return fmt.Errorf("toggle_flow_star: flow %s not found in memory", id)
	}
	return nil
}

// DiffFlowsRequest is diff_flows's argument shape.
type DiffFlowsRequest struct {
	LeftID  ulid.ULID
	RightID ulid.ULID
	Config  query.DiffConfig
}

// DiffFlows implements diff_flows.
func (d *Dispatcher) DiffFlows(ctx context.Context, req DiffFlowsRequest) (query.DiffResult, error) {
	left, err := d.Query.Get(ctx, req.LeftID)
	if err != nil {
		return query.DiffResult{}, err
	}
	right, err := d.Query.Get(ctx, req.RightID)
	if err != nil {
		return query.DiffResult{}, err
	}
	if left == nil || right == nil {
		return query.DiffResult{}, fmt.Errorf("diff_flows: one or both flow ids not found")
	}
	return d.Query.Diff(left, right, req.Config), nil
}

// SubscribeFlowEvents implements subscribe_flow_events.
func (d *Dispatcher) SubscribeFlowEvents() eventbus.Handle {
	return d.Bus.Subscribe()
}

// UnsubscribeFlowEvents implements the client-disconnect side of
// subscribe_flow_events.
func (d *Dispatcher) UnsubscribeFlowEvents(h eventbus.Handle) {
	d.Bus.Unsubscribe(h)
}

// ListQuickFilters implements list_quick_filters.
func (d *Dispatcher) ListQuickFilters() []*entities.QuickFilter { return d.Entities.ListQuickFilters() }

// ListSessions implements list_sessions.
func (d *Dispatcher) ListSessions() []*entities.Session { return d.Entities.ListSessions() }

// ListBookmarks implements list_bookmarks.
func (d *Dispatcher) ListBookmarks() []*entities.Bookmark { return d.Entities.ListBookmarks() }

// CreateSession implements create_session.
func (d *Dispatcher) CreateSession(name string) *entities.Session { return d.Entities.CreateSession(name) }

// UpdateSession implements update_session.
func (d *Dispatcher) UpdateSession(id uuid.UUID, name string, flowIDs []string) (*entities.Session, error) {
	return d.Entities.UpdateSession(id, func(s *entities.Session) {
		if name != "" {
			s.Name = name
		}
		if flowIDs != nil {
			s.FlowIDs = flowIDs
		}
	})
}

// DeleteSession implements delete_session.
func (d *Dispatcher) DeleteSession(id uuid.UUID) error { return d.Entities.DeleteSession(id) }

// ArchiveSession implements archive_session / unarchive_session.
func (d *Dispatcher) ArchiveSession(id uuid.UUID, archived bool) error {
	return d.Entities.ArchiveSession(id, archived)
}

// ExportSession implements export_session: bundles every Flow the
// Session references through the same export path export_flows uses.
func (d *Dispatcher) ExportSession(ctx context.Context, id uuid.UUID, format export.Format, opts export.Options) (export.Result, error) {
	sessions := d.Entities.ListSessions()
	var target *entities.Session
	for _, s := range sessions {
		if s.ID == id {
			target = s
			break
		}
	}
	if target == nil {
		return export.Result{}, fmt.Errorf("export_session: session %s not found", id)
	}

	ids := make([]ulid.ULID, 0, len(target.FlowIDs))
	for _, raw := range target.FlowIDs {
		id, err := ulid.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	flows, err := d.resolveFlows(ctx, ids, "")
	if err != nil {
		return export.Result{}, err
	}
	opts.Format = format
	return export.Export(flows, opts)
}

// SaveQuickFilter implements save_quick_filter.
func (d *Dispatcher) SaveQuickFilter(name, expression string) (*entities.QuickFilter, error) {
	if _, err := filter.Parse(expression); err != nil {
		return nil, fmt.Errorf("save_quick_filter: %w", err)
	}
	return d.Entities.SaveQuickFilter(name, expression), nil
}

// UpdateQuickFilter implements update_quick_filter.
func (d *Dispatcher) UpdateQuickFilter(id uuid.UUID, name, expression string) (*entities.QuickFilter, error) {
	return d.Entities.UpdateQuickFilter(id, name, expression)
}

// DeleteQuickFilter implements delete_quick_filter.
func (d *Dispatcher) DeleteQuickFilter(id uuid.UUID) error { return d.Entities.DeleteQuickFilter(id) }

// ImportQuickFilter implements import_quick_filter: validates the
// expression the same way save_quick_filter does and stores it as a
// new entry under a freshly assigned id, so an imported bundle never
// collides with a locally created QuickFilter's id.
func (d *Dispatcher) ImportQuickFilter(name, expression string) (*entities.QuickFilter, error) {
	return d.SaveQuickFilter(name, expression)
}

// ExportQuickFilter implements export_quick_filter: returns the named
// QuickFilter for the caller to serialize, mirroring export_session's
// "look up, then hand back" shape rather than export_flows' multi-
// format path, since a QuickFilter is plain metadata with nothing to
// redact or reformat.
func (d *Dispatcher) ExportQuickFilter(id uuid.UUID) (*entities.QuickFilter, error) {
	for _, qf := range d.Entities.ListQuickFilters() {
		if qf.ID == id {
			return qf, nil
		}
	}
	return nil, fmt.Errorf("export_quick_filter: quick filter %s not found", id)
}

// GetNotificationConfig implements get_notification_config.
func (d *Dispatcher) GetNotificationConfig() entities.NotificationConfig {
	return d.Entities.NotificationConfig()
}

// UpdateNotificationConfig implements update_notification_config.
func (d *Dispatcher) UpdateNotificationConfig(cfg entities.NotificationConfig) {
	d.Entities.UpdateNotificationConfig(cfg)
}

// AddBookmark implements the bookmark-creation half of list_bookmarks'
// CRUD family (spec.md §6 groups bookmarks with quick filters/sessions
// but only tables the list verb explicitly; add/delete are implied by
// the same CRUD pattern).
func (d *Dispatcher) AddBookmark(flowID, note string) *entities.Bookmark {
	return d.Entities.AddBookmark(flowID, note)
}

// DeleteBookmark implements bookmark deletion.
func (d *Dispatcher) DeleteBookmark(id uuid.UUID) error { return d.Entities.DeleteBookmark(id) }

// ReplayResult is replay_flow's response shape.
type ReplayResult struct {
	FlowID   ulid.ULID
	Response *flow.Response
	Error    string
}

// ReplayFlow implements replay_flow: re-sends the stored Flow's
// Request to the upstream provider via the injected Replayer.
func (d *Dispatcher) ReplayFlow(ctx context.Context, id ulid.ULID, cfg flow.Request) (ReplayResult, error) {
	if d.Replay == nil {
		return ReplayResult{}, fmt.Errorf("replay_flow: no replayer configured")
	}
	f, err := d.Query.Get(ctx, id)
	if err != nil {
		return ReplayResult{}, err
	}
	if f == nil {
		return ReplayResult{}, fmt.Errorf("replay_flow: flow %s not found", id)
	}

	req := f.Request
	req = mergeReplayConfig(req, cfg)

	resp, err := d.Replay(ctx, req)
	if err != nil {
		return ReplayResult{FlowID: id, Error: err.Error()}, nil
	}
	return ReplayResult{FlowID: id, Response: resp}, nil
}

// BatchReplayResult is replay_flows_batch's response shape.
type BatchReplayResult struct {
	Total   int
	Success int
	Failed  int
	Results []ReplayResult
}

// BatchReplayFlows implements replay_flows_batch: replays each id
// through ReplayFlow independently, so one provider failure doesn't
// abort the rest of the batch.
func (d *Dispatcher) BatchReplayFlows(ctx context.Context, ids []ulid.ULID, cfg flow.Request) (BatchReplayResult, error) {
	res := BatchReplayResult{Total: len(ids), Results: make([]ReplayResult, 0, len(ids))}
	for _, id := range ids {
		r, err := d.ReplayFlow(ctx, id, cfg)
		if err != nil {
			res.Failed++
			res.Results = append(res.Results, ReplayResult{FlowID: id, Error: err.Error()})
			continue
		}
		if r.Error != "" {
			res.Failed++
		} else {
			res.Success++
		}
		res.Results = append(res.Results, r)
	}
	return res, nil
}

func mergeReplayConfig(base, override flow.Request) flow.Request {
	if override.Model != "" {
		base.Model = override.Model
	}
	if override.Params.Temperature != nil {
		base.Params.Temperature = override.Params.Temperature
	}
	if override.Params.MaxTokens != nil {
		base.Params.MaxTokens = override.Params.MaxTokens
	}
	return base
}

// BatchResult is the shared response shape for every batch_* verb.
type BatchResult struct {
	Total   int
	Success int
	Failed  int
	Errors  []string
}

// BatchStar implements batch_star / batch_unstar.
func (d *Dispatcher) BatchStar(ids []ulid.ULID, starred bool) BatchResult {
	return d.batchAnnotate(ids, func(a *flow.Annotations) { a.Starred = starred })
}

// BatchAddTags implements batch_add_tags.
func (d *Dispatcher) BatchAddTags(ids []ulid.ULID, tags []string) BatchResult {
	return d.batchAnnotate(ids, func(a *flow.Annotations) {
		for _, t := range tags {
			if !containsTag(a.Tags, t) {
				a.Tags = append(a.Tags, t)
			}
		}
	})
}

// BatchRemoveTags implements batch_remove_tags.
func (d *Dispatcher) BatchRemoveTags(ids []ulid.ULID, tags []string) BatchResult {
	remove := make(map[string]bool, len(tags))
	for _, t := range tags {
		remove[t] = true
	}
	return d.batchAnnotate(ids, func(a *flow.Annotations) {
		kept := a.Tags[:0]
		for _, t := range a.Tags {
			if !remove[t] {
				kept = append(kept, t)
			}
		}
		a.Tags = kept
	})
}

func (d *Dispatcher) batchAnnotate(ids []ulid.ULID, fn func(*flow.Annotations)) BatchResult {
	res := BatchResult{Total: len(ids)}
	for _, id := range ids {
		if d.Mem.MutateAnnotations(id, fn) {
			res.Success++
		} else {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("flow %s not found in memory", id))
		}
	}
	return res
}

// BatchDelete implements batch_delete: removes Flows from MemoryStore
// only — FileStore is append-only and never mutated by a command
// (purge happens exclusively through retention GC per spec.md §9).
func (d *Dispatcher) BatchDelete(ids []ulid.ULID) BatchResult {
	res := BatchResult{Total: len(ids)}
	for _, id := range ids {
		if d.Mem.Get(id) == nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("flow %s not found in memory", id))
			continue
		}
		d.Mem.Remove(id)
		res.Success++
	}
	return res
}

// BatchExport implements batch_export.
func (d *Dispatcher) BatchExport(ctx context.Context, ids []ulid.ULID, format export.Format, opts export.Options) (export.Result, error) {
	flows, err := d.resolveFlows(ctx, ids, "")
	if err != nil {
		return export.Result{}, err
	}
	opts.Format = format
	return export.Export(flows, opts)
}

// BatchAddToSession implements batch_add_to_session.
func (d *Dispatcher) BatchAddToSession(sessionID uuid.UUID, ids []ulid.ULID) (*entities.Session, error) {
	ids2 := make([]string, len(ids))
	for i, id := range ids {
		ids2[i] = id.String()
	}
	return d.Entities.UpdateSession(sessionID, func(s *entities.Session) {
		for _, id := range ids2 {
			if !containsTag(s.FlowIDs, id) {
				s.FlowIDs = append(s.FlowIDs, id)
			}
		}
	})
}

func containsTag(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
