package indexdb

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

const summaryColumns = `
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	state TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	has_error INTEGER NOT NULL,
	has_tool_calls INTEGER NOT NULL,
	has_thinking INTEGER NOT NULL,
	is_streaming INTEGER NOT NULL,
	starred INTEGER NOT NULL,
	tags TEXT NOT NULL DEFAULT '',
	content_preview TEXT NOT NULL DEFAULT '',
	request_preview TEXT NOT NULL DEFAULT ''
`

func openSQLite(path string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("indexdb: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(maxConns)
	return db, nil
}

func timeFromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanSummary(scan func(dest ...any) error, r *Row) error {
	var created int64
	var hasErr, hasTool, hasThink, isStream, starred int
	if err := scan(&r.ID, &created, &r.Provider, &r.Model, &r.State, &r.DurationMs,
		&r.InputTokens, &r.OutputTokens, &r.TotalTokens, &hasErr, &hasTool, &hasThink,
		&isStream, &starred, &r.Tags, &r.ContentPreview, &r.RequestPreview); err != nil {
		return err
	}
	r.CreatedAt = time.UnixMilli(created)
	r.HasError = hasErr != 0
	r.HasToolCalls = hasTool != 0
	r.HasThinking = hasThink != 0
	r.IsStreaming = isStream != 0
	r.Starred = starred != 0
	return nil
}
