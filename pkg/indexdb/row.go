// Package indexdb wraps the per-day and cross-day SQLite indices of
// spec.md §4.5. It never touches the JSONL shard files itself — it only
// knows how to point a query at one, via (day, file, offset).
package indexdb

import "time"

// Row is one indexed Flow summary. File and Offset are only meaningful
// in a per-day DayIndex; GlobalIndex omits them per spec.md.
type Row struct {
	ID             string
	CreatedAt      time.Time
	Provider       string
	Model          string
	State          string
	DurationMs     int64
	InputTokens    int64
	OutputTokens   int64
	TotalTokens    int64
	HasError       bool
	HasToolCalls   bool
	HasThinking    bool
	IsStreaming    bool
	Starred        bool
	Tags           string // comma-joined
	File           string
	Offset         int64
	ContentPreview string
	RequestPreview string
	Day            string // YYYY-MM-DD, GlobalIndex only
}
