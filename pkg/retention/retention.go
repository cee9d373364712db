// Package retention implements the hourly folder-age purge of
// spec.md §4.5: delete day-folders older than the configured window and
// reconcile the global index, never touching the current day.
package retention

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/flowtap/flowcore/pkg/filestore"
)

// DefaultRetentionDays matches spec.md §9's default.
const DefaultRetentionDays = 7

// DefaultInterval is the GC scheduling period.
const DefaultInterval = time.Hour

// GC runs a single retention pass against store, deleting any day-folder
// older than retentionDays (measured from the folder's date, never the
// current day). Returns the folder names removed.
func GC(ctx context.Context, store *filestore.Store, retentionDays int) ([]string, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	days, err := store.ListDays()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	today := time.Now().UTC().Format("2006-01-02")
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	var removed []string
	for _, day := range days {
		if day == today {
			continue
		}
		t, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		if t.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(store.Root(), "flows", day)); err != nil {
			return removed, err
		}
		if _, err := store.Global().DeleteByDay(ctx, day); err != nil {
			return removed, err
		}
		removed = append(removed, day)
	}
	return removed, nil
}

// Scheduler runs GC on a ticker until Stop is called.
type Scheduler struct {
	store    *filestore.Store
	days     int
	interval time.Duration
	stop     chan struct{}
}

// NewScheduler constructs a Scheduler; call Start to begin ticking.
func NewScheduler(store *filestore.Store, retentionDays int, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{store: store, days: retentionDays, interval: interval, stop: make(chan struct{})}
}

// Start runs the GC loop in a background goroutine.
func (s *Scheduler) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed, err := GC(context.Background(), s.store, s.days); err != nil {
					log.Printf("retention: gc failed: %v", err)
				} else if len(removed) > 0 {
					log.Printf("retention: removed %d day folders: %v", len(removed), removed)
				}
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop ends the scheduling loop.
func (s *Scheduler) Stop() { close(s.stop) }
