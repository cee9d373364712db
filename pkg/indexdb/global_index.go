package indexdb

import (
	"context"
	"database/sql"
	"fmt"
)

// GlobalIndex is the cross-day summary index (spec.md §4.5's
// global.sqlite): it carries Day (to route a point lookup to the right
// per-day DayIndex) but never File/Offset. It also hosts the FTS5
// content_fts table used for coarse full-text search.
type GlobalIndex struct {
	db *sql.DB
}

func OpenGlobalIndex(path string) (*GlobalIndex, error) {
	db, err := openSQLite(path, 8)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS flows (` + summaryColumns + `,
		day TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_gflows_provider ON flows(provider);
	CREATE INDEX IF NOT EXISTS idx_gflows_model ON flows(model);
	CREATE INDEX IF NOT EXISTS idx_gflows_state ON flows(state);
	CREATE INDEX IF NOT EXISTS idx_gflows_day ON flows(day);
	CREATE VIRTUAL TABLE IF NOT EXISTS content_fts USING fts5(
		id UNINDEXED, content_preview, request_preview
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("indexdb: global schema: %w", err)
	}
	return &GlobalIndex{db: db}, nil
}

func (g *GlobalIndex) Close() error { return g.db.Close() }

func (g *GlobalIndex) Upsert(ctx context.Context, day string, r Row) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO flows (id, created_at, provider, model, state, duration_ms,
			input_tokens, output_tokens, total_tokens, has_error, has_tool_calls,
			has_thinking, is_streaming, starred, tags, content_preview,
			request_preview, day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state, duration_ms=excluded.duration_ms,
			input_tokens=excluded.input_tokens, output_tokens=excluded.output_tokens,
			total_tokens=excluded.total_tokens, has_error=excluded.has_error,
			has_tool_calls=excluded.has_tool_calls, has_thinking=excluded.has_thinking,
			is_streaming=excluded.is_streaming, starred=excluded.starred,
			tags=excluded.tags, content_preview=excluded.content_preview,
			request_preview=excluded.request_preview, day=excluded.day`,
		r.ID, r.CreatedAt.UnixMilli(), r.Provider, r.Model, r.State, r.DurationMs,
		r.InputTokens, r.OutputTokens, r.TotalTokens, boolToInt(r.HasError),
		boolToInt(r.HasToolCalls), boolToInt(r.HasThinking), boolToInt(r.IsStreaming),
		boolToInt(r.Starred), r.Tags, r.ContentPreview, r.RequestPreview, day)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM content_fts WHERE id = ?`, r.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO content_fts (id, content_preview, request_preview) VALUES (?, ?, ?)`,
		r.ID, r.ContentPreview, r.RequestPreview); err != nil {
		return err
	}
	return tx.Commit()
}

// DayOf resolves which per-day shard holds id, for routing a point get.
func (g *GlobalIndex) DayOf(ctx context.Context, id string) (string, bool, error) {
	var day string
	err := g.db.QueryRowContext(ctx, `SELECT day FROM flows WHERE id = ?`, id).Scan(&day)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return day, true, nil
}

// Query returns rows matching a raw SQL predicate (table alias-free),
// newest first, paginated. Used to narrow candidate ids before
// per-flow hydration.
func (g *GlobalIndex) Query(ctx context.Context, where string, args []any, limit, offset int) ([]Row, int, error) {
	countQ := `SELECT COUNT(*) FROM flows`
	if where != "" {
		countQ += " WHERE " + where
	}
	var total int
	if err := g.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT id, created_at, provider, model, state, duration_ms, input_tokens,
		output_tokens, total_tokens, has_error, has_tool_calls, has_thinking,
		is_streaming, starred, tags, content_preview, request_preview, day FROM flows`
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?"
	rows, err := g.db.QueryContext(ctx, q, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		scanWithDay := func(dest ...any) error { return rows.Scan(append(dest, &r.Day)...) }
		if err := scanSummary(scanWithDay, &r); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// Search runs an FTS5 MATCH query over content/request previews,
// returning candidate ids in rank order (spec.md §4.7's search verb;
// callers must rehydrate and re-check the full Flow).
func (g *GlobalIndex) Search(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT id FROM content_fts WHERE content_fts MATCH ? ORDER BY rank LIMIT ?`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteByDay purges every row (and FTS entry) belonging to day, used
// by retention GC when a folder is removed.
func (g *GlobalIndex) DeleteByDay(ctx context.Context, day string) (int64, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT id FROM flows WHERE day = ?`, day)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM content_fts WHERE id = ?`, id); err != nil {
			return 0, err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM flows WHERE day = ?`, day)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteID removes a single row and its FTS entry, used by crash
// replay when a day-local row is discovered to be past EOF.
func (g *GlobalIndex) DeleteID(ctx context.Context, id string) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM content_fts WHERE id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM flows WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
