package entities

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by the single-item lookups below.
var ErrNotFound = fmt.Errorf("entities: not found")

// Store holds Sessions, QuickFilters, Bookmarks, and the
// NotificationConfig singleton. It has no persistence layer of its own;
// the command dispatcher is responsible for wiring it to disk if the
// shell wants durability across restarts.
type Store struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]*Session
	filters   map[uuid.UUID]*QuickFilter
	bookmarks map[uuid.UUID]*Bookmark
	notify    NotificationConfig
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		sessions:  make(map[uuid.UUID]*Session),
		filters:   make(map[uuid.UUID]*QuickFilter),
		bookmarks: make(map[uuid.UUID]*Bookmark),
		notify:    DefaultNotificationConfig,
	}
}

func (s *Store) CreateSession(name string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	sess := &Session{ID: uuid.New(), Name: name, CreatedAt: now, UpdatedAt: now}
	s.sessions[sess.ID] = sess
	return sess
}

func (s *Store) UpdateSession(id uuid.UUID, mutate func(*Session)) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	mutate(sess)
	sess.UpdatedAt = time.Now()
	return sess, nil
}

func (s *Store) ArchiveSession(id uuid.UUID, archived bool) error {
	_, err := s.UpdateSession(id, func(sess *Session) { sess.Archived = archived })
	return err
}

func (s *Store) DeleteSession(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *Store) ListSessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) SaveQuickFilter(name, expression string) *QuickFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	qf := &QuickFilter{ID: uuid.New(), Name: name, Expression: expression, CreatedAt: now, UpdatedAt: now}
	s.filters[qf.ID] = qf
	return qf
}

func (s *Store) UpdateQuickFilter(id uuid.UUID, name, expression string) (*QuickFilter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qf, ok := s.filters[id]
	if !ok {
		return nil, ErrNotFound
	}
	qf.Name = name
	qf.Expression = expression
	qf.UpdatedAt = time.Now()
	return qf, nil
}

func (s *Store) DeleteQuickFilter(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.filters[id]; !ok {
		return ErrNotFound
	}
	delete(s.filters, id)
	return nil
}

func (s *Store) ListQuickFilters() []*QuickFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*QuickFilter, 0, len(s.filters))
	for _, qf := range s.filters {
		out = append(out, qf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) AddBookmark(flowID, note string) *Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	bm := &Bookmark{ID: uuid.New(), FlowID: flowID, Note: note, CreatedAt: time.Now()}
	s.bookmarks[bm.ID] = bm
	return bm
}

func (s *Store) DeleteBookmark(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookmarks[id]; !ok {
		return ErrNotFound
	}
	delete(s.bookmarks, id)
	return nil
}

func (s *Store) ListBookmarks() []*Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Bookmark, 0, len(s.bookmarks))
	for _, bm := range s.bookmarks {
		out = append(out, bm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) NotificationConfig() NotificationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notify
}

func (s *Store) UpdateNotificationConfig(cfg NotificationConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = cfg
}
