package indexdb

import (
	"context"
	"database/sql"
	"fmt"
)

// DayIndex is the per-day summary index (spec.md §4.5's index.sqlite),
// the only place File/Offset are recorded — point reads resolve a Flow
// id to a byte range here after GlobalIndex has named the day.
type DayIndex struct {
	db *sql.DB
}

func OpenDayIndex(path string) (*DayIndex, error) {
	db, err := openSQLite(path, 1)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS flows (` + summaryColumns + `,
		file TEXT NOT NULL,
		offset INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_flows_provider ON flows(provider);
	CREATE INDEX IF NOT EXISTS idx_flows_model ON flows(model);
	CREATE INDEX IF NOT EXISTS idx_flows_state ON flows(state);
	CREATE INDEX IF NOT EXISTS idx_flows_created_at ON flows(created_at);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("indexdb: day schema: %w", err)
	}
	return &DayIndex{db: db}, nil
}

func (d *DayIndex) Close() error { return d.db.Close() }

func (d *DayIndex) Upsert(ctx context.Context, r Row) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO flows (id, created_at, provider, model, state, duration_ms,
			input_tokens, output_tokens, total_tokens, has_error, has_tool_calls,
			has_thinking, is_streaming, starred, tags, content_preview,
			request_preview, file, offset)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state, duration_ms=excluded.duration_ms,
			input_tokens=excluded.input_tokens, output_tokens=excluded.output_tokens,
			total_tokens=excluded.total_tokens, has_error=excluded.has_error,
			has_tool_calls=excluded.has_tool_calls, has_thinking=excluded.has_thinking,
			is_streaming=excluded.is_streaming, starred=excluded.starred,
			tags=excluded.tags, content_preview=excluded.content_preview,
			request_preview=excluded.request_preview, file=excluded.file,
			offset=excluded.offset`,
		r.ID, r.CreatedAt.UnixMilli(), r.Provider, r.Model, r.State, r.DurationMs,
		r.InputTokens, r.OutputTokens, r.TotalTokens, boolToInt(r.HasError),
		boolToInt(r.HasToolCalls), boolToInt(r.HasThinking), boolToInt(r.IsStreaming),
		boolToInt(r.Starred), r.Tags, r.ContentPreview, r.RequestPreview, r.File, r.Offset)
	return err
}

func (d *DayIndex) Get(ctx context.Context, id string) (*Row, bool, error) {
	row := d.db.QueryRowContext(ctx, `SELECT id, created_at, provider, model, state,
		duration_ms, input_tokens, output_tokens, total_tokens, has_error,
		has_tool_calls, has_thinking, is_streaming, starred, tags, content_preview,
		request_preview, file, offset FROM flows WHERE id = ?`, id)
	var r Row
	var created int64
	var hasErr, hasTool, hasThink, isStream, starred int
	err := row.Scan(&r.ID, &created, &r.Provider, &r.Model, &r.State, &r.DurationMs,
		&r.InputTokens, &r.OutputTokens, &r.TotalTokens, &hasErr, &hasTool, &hasThink,
		&isStream, &starred, &r.Tags, &r.ContentPreview, &r.RequestPreview, &r.File, &r.Offset)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	r.CreatedAt = timeFromMillis(created)
	r.HasError, r.HasToolCalls, r.HasThinking = hasErr != 0, hasTool != 0, hasThink != 0
	r.IsStreaming, r.Starred = isStream != 0, starred != 0
	return &r, true, nil
}

// Query returns rows matching a raw SQL predicate fragment (column
// names only, no table prefix needed), newest first, paginated.
func (d *DayIndex) Query(ctx context.Context, where string, args []any, limit, offset int) ([]Row, error) {
	q := `SELECT id, created_at, provider, model, state, duration_ms, input_tokens,
		output_tokens, total_tokens, has_error, has_tool_calls, has_thinking,
		is_streaming, starred, tags, content_preview, request_preview FROM flows`
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?"
	rows, err := d.db.QueryContext(ctx, q, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		if err := scanSummary(rows.Scan, &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteWhereOffsetGTE purges index rows in file at or past offset —
// used by crash-recovery replay to discard entries for a truncated tail
// (spec.md §4.5's "Crash safety").
func (d *DayIndex) DeleteWhereOffsetGTE(ctx context.Context, file string, offset int64) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM flows WHERE file = ? AND offset >= ?`, file, offset)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HasID reports whether id is already indexed, used by replay to decide
// whether a fully-written-but-unindexed row needs inserting.
func (d *DayIndex) HasID(ctx context.Context, id string) (bool, error) {
	var exists int
	err := d.db.QueryRowContext(ctx, `SELECT 1 FROM flows WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
