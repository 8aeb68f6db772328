// Package memory provides an in-memory ConflictStore, suitable for tests
// and for UIs that do not need conflicts to survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	livesync "github.com/knovault/go-live-sync"
	kiterr "github.com/knovault/go-live-sync/errors"
)

// Store is a map-backed ConflictStore. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	conflicts map[string]livesync.Conflict
}

var _ livesync.ConflictStore = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{conflicts: make(map[string]livesync.Conflict)}
}

// Record inserts or updates the entry keyed by conflict id. A resolved
// conflict is never re-opened by a repeated detection.
func (s *Store) Record(ctx context.Context, c livesync.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.conflicts[c.ID]; ok && existing.Status == livesync.ConflictResolved {
		return nil
	}
	c.Status = livesync.ConflictPending
	c.Resolution = ""
	c.ResolvedAt = nil
	s.conflicts[c.ID] = c
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (livesync.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conflicts[id]
	if !ok {
		return livesync.Conflict{}, kiterr.NewConflictNotFound(id)
	}
	return c, nil
}

func (s *Store) Resolve(ctx context.Context, id string, strategy livesync.ResolutionStrategy, note string) (livesync.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conflicts[id]
	if !ok {
		return livesync.Conflict{}, kiterr.NewConflictNotFound(id)
	}
	if c.Status == livesync.ConflictResolved {
		return livesync.Conflict{}, kiterr.NewConflictAlreadyResolved(id)
	}

	now := time.Now().UTC()
	c.Status = livesync.ConflictResolved
	c.Resolution = strategy
	c.Note = note
	c.ResolvedAt = &now
	s.conflicts[id] = c
	return c, nil
}

// List returns conflicts ordered by detection timestamp descending.
func (s *Store) List(ctx context.Context, filter livesync.ConflictFilter) ([]livesync.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]livesync.Conflict, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return out, nil
}

func (s *Store) Counts(ctx context.Context) (livesync.ConflictCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts livesync.ConflictCounts
	for _, c := range s.conflicts {
		switch c.Status {
		case livesync.ConflictPending:
			counts.Pending++
		case livesync.ConflictResolved:
			counts.Resolved++
		}
	}
	return counts, nil
}

func (s *Store) Close() error {
	return nil
}
