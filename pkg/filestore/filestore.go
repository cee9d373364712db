// Package filestore implements the on-disk Flow archive of spec.md
// §4.5: day-sharded append-only JSONL with a per-day SQLite index and a
// cross-day summary index, fed by a single writer task draining a
// bounded, drop-oldest channel.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/flowtap/flowcore/pkg/indexdb"
)

const (
	// DefaultMaxFileSize is the shard rotation threshold (spec.md §4.5).
	DefaultMaxFileSize = 64 << 20
	// DefaultChannelCapacity is the writer queue depth.
	DefaultChannelCapacity = 1024
	previewRunes           = 200
)

// Options configures a Store.
type Options struct {
	Root            string
	MaxFileSize     int64
	ChannelCapacity int
}

// Store is the on-disk archive. One writer goroutine owns all shard
// file handles and index writes; readers never touch the write path.
type Store struct {
	root        string
	maxFileSize int64

	mu      sync.Mutex
	day     string // YYYY-MM-DD of the currently-open shard
	dayIdx  *indexdb.DayIndex
	file    *os.File
	size    int64
	rotN    int

	global *indexdb.GlobalIndex

	ch      chan *flow.Flow
	chMu    sync.Mutex
	closeCh chan struct{}
	wg      sync.WaitGroup

	dropped           int64
	indexCorruptCount int64
}

// Open constructs a Store rooted at opts.Root, opening (or creating)
// today's shard and the global index, and starts the background writer.
func Open(opts Options) (*Store, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.ChannelCapacity <= 0 {
		opts.ChannelCapacity = DefaultChannelCapacity
	}
	if err := os.MkdirAll(filepath.Join(opts.Root, "flows"), 0o755); err != nil {
		return nil, fmt.Errorf("filestore: mkdir root: %w", err)
	}
	global, err := indexdb.OpenGlobalIndex(filepath.Join(opts.Root, "global.sqlite"))
	if err != nil {
		return nil, err
	}
	s := &Store{
		root:        opts.Root,
		maxFileSize: opts.MaxFileSize,
		global:      global,
		ch:          make(chan *flow.Flow, opts.ChannelCapacity),
		closeCh:     make(chan struct{}),
	}
	if err := s.replay(context.Background()); err != nil {
		global.Close()
		return nil, err
	}
	if err := s.switchDayLocked(dayString(time.Now())); err != nil {
		global.Close()
		return nil, err
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

func dayString(t time.Time) string { return t.UTC().Format("2006-01-02") }

func (s *Store) dayDir(day string) string { return filepath.Join(s.root, "flows", day) }

func (s *Store) switchDayLocked(day string) error {
	if s.dayIdx != nil {
		s.dayIdx.Close()
	}
	if s.file != nil {
		s.file.Close()
	}
	dir := s.dayDir(day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filestore: mkdir day dir: %w", err)
	}
	idx, err := indexdb.OpenDayIndex(filepath.Join(dir, "index.sqlite"))
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "flows.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		idx.Close()
		return fmt.Errorf("filestore: open shard: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		idx.Close()
		return err
	}
	s.day = day
	s.dayIdx = idx
	s.file = f
	s.size = info.Size()
	s.rotN = highestRotation(dir)
	return nil
}

func highestRotation(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	max := 0
	for _, e := range entries {
		name := e.Name()
		if idx := strings.LastIndex(name, ".rot"); idx >= 0 {
			var n int
			if _, err := fmt.Sscanf(name[idx:], ".rot%d", &n); err == nil && n > max {
				max = n
			}
		}
	}
	return max
}

// Enqueue submits f for durable persistence. Non-blocking: if the
// writer queue is full, the oldest unwritten Flow is dropped (its
// in-memory copy is unaffected) and the WriteDropped counter advances.
func (s *Store) Enqueue(f *flow.Flow) {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	select {
	case s.ch <- f:
		return
	default:
	}
	select {
	case <-s.ch:
		atomic.AddInt64(&s.dropped, 1)
	default:
	}
	select {
	case s.ch <- f:
	default:
		atomic.AddInt64(&s.dropped, 1)
	}
}

// DroppedCount reports how many Flows were lost to writer-queue
// overflow (surfaced as the WriteDropped error-taxonomy counter).
func (s *Store) DroppedCount() int64 { return atomic.LoadInt64(&s.dropped) }

func (s *Store) run() {
	defer s.wg.Done()
	for {
		select {
		case f := <-s.ch:
			s.write(f)
		case <-s.closeCh:
			// Drain remaining queued Flows before exiting.
			for {
				select {
				case f := <-s.ch:
					s.write(f)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) write(f *flow.Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := dayString(f.Timestamps.Created)
	if today != s.day {
		if err := s.switchDayLocked(today); err != nil {
			return
		}
	}

	line, err := json.Marshal(f)
	if err != nil {
		return
	}
	offset := s.size
	n, err := s.file.Write(append(line, '\n'))
	if err != nil {
		return
	}
	s.size += int64(n)

	row := RowFromFlow(f, filepath.Base(s.file.Name()), offset)
	ctx := context.Background()
	s.dayIdx.Upsert(ctx, row)
	s.global.Upsert(ctx, s.day, row)

	if s.size >= s.maxFileSize {
		s.rotateLocked()
	}
}

func (s *Store) rotateLocked() {
	s.file.Close()
	s.rotN++
	dir := s.dayDir(s.day)
	oldPath := filepath.Join(dir, "flows.jsonl")
	rotPath := filepath.Join(dir, fmt.Sprintf("flows.jsonl.rot%d", s.rotN))
	os.Rename(oldPath, rotPath)

	f, err := os.OpenFile(oldPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return
	}
	s.file = f
	s.size = 0
}

// Close stops the writer after draining its queue and releases all
// file and database handles.
func (s *Store) Close() error {
	close(s.closeCh)
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.file.Close()
	}
	if s.dayIdx != nil {
		s.dayIdx.Close()
	}
	return s.global.Close()
}

// Global exposes the cross-day index for read-side use by QueryService.
func (s *Store) Global() *indexdb.GlobalIndex { return s.global }

// Root returns the configured root directory.
func (s *Store) Root() string { return s.root }

// RowFromFlow projects a Flow into the indexdb summary row shape,
// computing the bounded previews spec.md §4.5 calls for.
func RowFromFlow(f *flow.Flow, file string, offset int64) indexdb.Row {
	var duration, input, output, total int64
	if f.Timestamps.DurationMs != nil {
		duration = *f.Timestamps.DurationMs
	}
	hasErr := f.Error != nil
	hasTool, hasThink, content := false, false, ""
	if f.Response != nil {
		hasTool = len(f.Response.ToolCalls) > 0
		hasThink = f.Response.Thinking != nil
		content = f.Response.Content
		if f.Response.Usage.InputTokens != nil {
			input = *f.Response.Usage.InputTokens
		}
		if f.Response.Usage.OutputTokens != nil {
			output = *f.Response.Usage.OutputTokens
		}
		if f.Response.Usage.TotalTokens != nil {
			total = *f.Response.Usage.TotalTokens
		}
	}

	return indexdb.Row{
		ID:             f.ID.String(),
		CreatedAt:      f.Timestamps.Created,
		Provider:       f.Metadata.Provider,
		Model:          f.Request.Model,
		State:          string(f.State),
		DurationMs:     duration,
		InputTokens:    input,
		OutputTokens:   output,
		TotalTokens:    total,
		HasError:       hasErr,
		HasToolCalls:   hasTool,
		HasThinking:    hasThink,
		IsStreaming:    f.Response != nil && f.Response.Stream != nil,
		Starred:        f.Annotations.Starred,
		Tags:           strings.Join(f.Annotations.Tags, ","),
		File:           file,
		Offset:         offset,
		ContentPreview: truncateRunes(content, previewRunes),
		RequestPreview: truncateRunes(f.Request.PlainText(), previewRunes),
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ListDays returns every day-folder name under root, sorted ascending.
func (s *Store) ListDays() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "flows"))
	if err != nil {
		return nil, err
	}
	var days []string
	for _, e := range entries {
		if e.IsDir() {
			days = append(days, e.Name())
		}
	}
	sort.Strings(days)
	return days, nil
}
