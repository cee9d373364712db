// Package query implements QueryService (spec.md §4.7): the read path
// that merges MemoryStore's hot cache with FileStore's on-disk archive,
// de-duplicating by id with memory taking precedence, and applies the
// Filter engine both as SQL-pushdown (sargable predicates) and as a
// final in-memory confirmation pass.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/flowtap/flowcore/pkg/filestore"
	"github.com/flowtap/flowcore/pkg/filter"
	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/flowtap/flowcore/pkg/memstore"
	"github.com/oklog/ulid/v2"
)

// SortField is the set of columns query() may sort by.
type SortField string

const (
	SortCreatedAt   SortField = "created_at"
	SortDuration    SortField = "duration"
	SortTotalTokens SortField = "total_tokens"
	SortModel       SortField = "model"
)

// Result is the paginated response of Query.
type Result struct {
	Flows      []*flow.Flow `json:"flows"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalPages int          `json:"totalPages"`
}

// Service is the QueryService. It holds no lifecycle of its own beyond
// the stores it wraps.
type Service struct {
	Mem   *memstore.Store
	Files *filestore.Store
}

// New constructs a Service over the given stores.
func New(mem *memstore.Store, files *filestore.Store) *Service {
	return &Service{Mem: mem, Files: files}
}

// Query evaluates expr against memory + file, de-duplicates by id
// (memory wins), sorts with an id-ascending tie-break, and paginates.
// A nil expr matches everything.
func (s *Service) Query(ctx context.Context, expr *filter.Expr, sortBy SortField, desc bool, page, pageSize int) (Result, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	matched, err := s.matchAll(ctx, expr)
	if err != nil {
		return Result{}, err
	}

	sortFlows(matched, sortBy, desc)

	total := len(matched)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return Result{
		Flows:      matched[start:end],
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

func sortFlows(flows []*flow.Flow, sortBy SortField, desc bool) {
	less := func(i, j int) bool {
		a, b := flows[i], flows[j]
		var cmp int
		switch sortBy {
		case SortDuration:
			cmp = compareInt64Ptr(a.Timestamps.DurationMs, b.Timestamps.DurationMs)
		case SortTotalTokens:
			cmp = compareInt64Ptr(usageTotal(a), usageTotal(b))
		case SortModel:
			cmp = strings.Compare(a.Request.Model, b.Request.Model)
		default:
			cmp = a.Timestamps.Created.Compare(b.Timestamps.Created)
		}
		if cmp == 0 {
			return a.ID.Compare(b.ID) < 0
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	}
	sort.Slice(flows, less)
}

func usageTotal(f *flow.Flow) *int64 {
	if f.Response == nil {
		return nil
	}
	return f.Response.Usage.TotalTokens
}

func compareInt64Ptr(a, b *int64) int {
	av, bv := int64(0), int64(0)
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

// matchAll evaluates expr against memory + file, de-duplicating by id
// with memory taking precedence. Used by Query, Stats, and
// EnhancedStats alike.
func (s *Service) matchAll(ctx context.Context, expr *filter.Expr) ([]*flow.Flow, error) {
	seen := make(map[ulid.ULID]bool)
	var matched []*flow.Flow

	for _, f := range s.Mem.Snapshot() {
		if filter.Evaluate(expr, f) {
			matched = append(matched, f)
			seen[f.ID] = true
		}
	}

	fileFlows, err := s.queryFileStore(ctx, expr)
	if err != nil {
		return nil, err
	}
	for _, f := range fileFlows {
		if !seen[f.ID] {
			matched = append(matched, f)
			seen[f.ID] = true
		}
	}
	return matched, nil
}

// Get returns the Flow by id, checking memory before the file archive.
func (s *Service) Get(ctx context.Context, id ulid.ULID) (*flow.Flow, error) {
	if f := s.Mem.Get(id); f != nil {
		return f, nil
	}
	day, found, err := s.Files.Global().DayOf(ctx, id.String())
	if err != nil || !found {
		return nil, err
	}
	return s.Files.Hydrate(ctx, day, id.String())
}

// queryFileStore narrows candidates via the sargable predicates, then
// hydrates each one from disk.
func (s *Service) queryFileStore(ctx context.Context, expr *filter.Expr) ([]*flow.Flow, error) {
	sarg := filter.ExtractSargable(expr)
	where, args := buildWhere(sarg)

	rows, _, err := s.Files.Global().Query(ctx, where, args, maxFileCandidates, 0)
	if err != nil {
		return nil, err
	}

	var out []*flow.Flow
	for _, r := range rows {
		f, err := s.Files.Hydrate(ctx, r.Day, r.ID)
		if err != nil || f == nil {
			continue
		}
		if sarg.Residual != nil && !filter.Evaluate(sarg.Residual, f) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// maxFileCandidates bounds how many rows the sargable SQL pass returns
// before in-memory residual filtering and pagination; a generous cap
// keeps this simple without scanning the entire archive per query.
const maxFileCandidates = 5000

func buildWhere(s filter.Sargable) (string, []any) {
	var clauses []string
	var args []any

	if s.Provider != nil {
		clauses = append(clauses, "provider = ?")
		args = append(args, *s.Provider)
	}
	if s.State != nil {
		clauses = append(clauses, "state = ?")
		args = append(args, *s.State)
	}
	if len(s.ModelLikeAny) > 0 {
		var ors []string
		for _, pat := range s.ModelLikeAny {
			ors = append(ors, "model LIKE ?")
			args = append(args, strings.ReplaceAll(pat, "*", "%"))
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	if s.HasError != nil {
		clauses = append(clauses, "has_error = ?")
		args = append(args, boolToInt(*s.HasError))
	}
	if s.HasToolCalls != nil {
		clauses = append(clauses, "has_tool_calls = ?")
		args = append(args, boolToInt(*s.HasToolCalls))
	}
	if s.HasThinking != nil {
		clauses = append(clauses, "has_thinking = ?")
		args = append(args, boolToInt(*s.HasThinking))
	}
	if s.Starred != nil {
		clauses = append(clauses, "starred = ?")
		args = append(args, boolToInt(*s.Starred))
	}
	for _, tag := range s.Tags {
		clauses = append(clauses, "((',' || tags || ',') LIKE ?)")
		args = append(args, "%,"+tag+",%")
	}
	for _, b := range s.TotalTokens {
		clauses = append(clauses, fmt.Sprintf("total_tokens %s ?", sqlOp(b.Comparator)))
		args = append(args, b.Value)
	}
	for _, b := range s.Latency {
		clauses = append(clauses, fmt.Sprintf("duration_ms %s ?", sqlOp(b.Comparator)))
		args = append(args, b.Value)
	}

	return strings.Join(clauses, " AND "), args
}

func sqlOp(c filter.Comparator) string {
	switch c {
	case filter.CmpGT:
		return ">"
	case filter.CmpGE:
		return ">="
	case filter.CmpLT:
		return "<"
	case filter.CmpLE:
		return "<="
	default:
		return "="
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Search runs full-text search over content/request previews and
// rehydrates matches into summaries (spec.md §4.7).
func (s *Service) Search(ctx context.Context, query string, limit int) ([]flow.Summary, error) {
	needle := strings.ToLower(query)
	var out []flow.Summary
	for _, f := range s.Mem.Snapshot() {
		content := ""
		if f.Response != nil {
			content = f.Response.Content
		}
		if strings.Contains(strings.ToLower(content), needle) ||
			strings.Contains(strings.ToLower(f.Request.PlainText()), needle) {
			out = append(out, f.ToSummary())
			if len(out) >= limit {
				return out, nil
			}
		}
	}

	ids, err := s.Files.Global().Search(ctx, escapeFTS(query), limit)
	if err != nil {
		return out, err
	}
	for _, id := range ids {
		parsed, perr := ulid.Parse(id)
		if perr != nil {
			continue
		}
		if s.Mem.Get(parsed) != nil {
			continue // already included from memory
		}
		day, found, err := s.Files.Global().DayOf(ctx, id)
		if err != nil || !found {
			continue
		}
		f, err := s.Files.Hydrate(ctx, day, id)
		if err != nil || f == nil {
			continue
		}
		out = append(out, f.ToSummary())
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func escapeFTS(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}
