// Package memstore implements the bounded in-memory hot store of
// spec.md §4.4: an O(1)-by-id index plus a reverse-chronological index
// for list paging, with count-based eviction of terminal Flows only.
package memstore

import (
	"sort"
	"sync"

	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/oklog/ulid/v2"
)

// DefaultCapacity is N from spec.md §4.4: the number of terminal Flows
// retained before the oldest is evicted.
const DefaultCapacity = 1000

// Stats is the observability counter MemoryStore exposes; it never
// gates eviction (count-based only is sufficient per spec.md).
type Stats struct {
	Count           int
	TerminalCount   int
	TotalBytes      int64
	EvictedCount    int64
}

// Store is the bounded hot cache of recent Flows. ULIDs already sort by
// creation time, so the "by creation timestamp" index from spec.md §4.4
// is just a sorted slice of ids kept in insertion order — no external
// ordered-map dependency is needed (this is the one intentionally
// stdlib-only data structure in the core; see DESIGN.md).
type Store struct {
	mu       sync.RWMutex
	capacity int
	byID     map[ulid.ULID]*flow.Flow
	order    []ulid.ULID // ascending by id (== by creation time)
	evicted  int64
}

// New constructs a Store with the given terminal-Flow capacity. A
// capacity <= 0 falls back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		byID:     make(map[ulid.ULID]*flow.Flow),
	}
}

// Insert adds or replaces f, then evicts the oldest terminal Flow if
// the terminal count now exceeds capacity. Non-terminal Flows are never
// evicted.
func (s *Store) Insert(f *flow.Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[f.ID]; !exists {
		idx := sort.Search(len(s.order), func(i int) bool {
			return s.order[i].Compare(f.ID) >= 0
		})
		s.order = append(s.order, ulid.ULID{})
		copy(s.order[idx+1:], s.order[idx:])
		s.order[idx] = f.ID
	}
	s.byID[f.ID] = f
	s.evictIfNeeded()
}

func (s *Store) evictIfNeeded() {
	for s.terminalCountLocked() > s.capacity {
		evicted := false
		for _, id := range s.order {
			f := s.byID[id]
			if f != nil && f.State.Terminal() {
				delete(s.byID, id)
				s.removeFromOrderLocked(id)
				s.evicted++
				evicted = true
				break
			}
		}
		if !evicted {
			break
		}
	}
}

func (s *Store) removeFromOrderLocked(id ulid.ULID) {
	idx := sort.Search(len(s.order), func(i int) bool {
		return s.order[i].Compare(id) >= 0
	})
	if idx < len(s.order) && s.order[idx] == id {
		s.order = append(s.order[:idx], s.order[idx+1:]...)
	}
}

func (s *Store) terminalCountLocked() int {
	n := 0
	for _, f := range s.byID {
		if f.State.Terminal() {
			n++
		}
	}
	return n
}

// Get returns the Flow by id, or nil if not present.
func (s *Store) Get(id ulid.ULID) *flow.Flow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// MutateAnnotations applies fn to id's Annotations block under the
// store's write lock, the one field Terminal Flows may still change.
// Reports whether id was found.
func (s *Store) MutateAnnotations(id ulid.ULID, fn func(*flow.Annotations)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.byID[id]
	if !ok {
		return false
	}
	fn(&f.Annotations)
	return true
}

// Remove deletes id unconditionally (used by explicit purge/delete
// commands, not by retention GC which only touches FileStore).
func (s *Store) Remove(id ulid.ULID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	s.removeFromOrderLocked(id)
}

// List returns up to limit Flows in reverse-chronological order
// starting after the offset-th most recent one.
func (s *Store) List(offset, limit int) []*flow.Flow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.order)
	out := make([]*flow.Flow, 0, limit)
	for i := n - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.byID[s.order[i]])
	}
	return out
}

// Snapshot returns every Flow currently held, in reverse-chronological
// order. Used by QueryService to merge with file-backed results.
func (s *Store) Snapshot() []*flow.Flow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*flow.Flow, len(s.order))
	for i, id := range s.order {
		out[len(s.order)-1-i] = s.byID[id]
	}
	return out
}

// Stats reports the current size and cumulative eviction counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Count: len(s.byID), EvictedCount: s.evicted}
	for _, f := range s.byID {
		st.TotalBytes += f.TotalBytes()
		if f.State.Terminal() {
			st.TerminalCount++
		}
	}
	return st
}
