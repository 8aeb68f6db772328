package livesync

import (
	"context"
	"sync"
	"time"

	kiterr "github.com/knovault/go-live-sync/errors"
)

// fakeSocket records frames and exposes its handler so tests can drive the
// lifecycle callbacks by hand.
type fakeSocket struct {
	mu      sync.Mutex
	handler SocketHandler
	sent    [][]byte
	closed  bool
	sendErr error
}

func (s *fakeSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.sent = append(s.sent, cp)
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) sentFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) failSends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// fakeDialer hands out fakeSockets and counts dial attempts.
type fakeDialer struct {
	mu    sync.Mutex
	socks []*fakeSocket
}

func (d *fakeDialer) Dial(url string, h SocketHandler) Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &fakeSocket{handler: h}
	d.socks = append(d.socks, s)
	return s
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.socks)
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.socks[i]
}

func (d *fakeDialer) lastSocket() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.socks[len(d.socks)-1]
}

// mockConflictStore is an in-memory ConflictStore for manager and workflow
// tests, with optional error injection.
type mockConflictStore struct {
	mu        sync.Mutex
	conflicts map[string]Conflict
	recordErr error
}

func newMockConflictStore() *mockConflictStore {
	return &mockConflictStore{conflicts: make(map[string]Conflict)}
}

func (s *mockConflictStore) Record(ctx context.Context, c Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	if existing, ok := s.conflicts[c.ID]; ok && existing.Status == ConflictResolved {
		return nil
	}
	c.Status = ConflictPending
	s.conflicts[c.ID] = c
	return nil
}

func (s *mockConflictStore) Get(ctx context.Context, id string) (Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conflicts[id]
	if !ok {
		return Conflict{}, kiterr.NewConflictNotFound(id)
	}
	return c, nil
}

func (s *mockConflictStore) Resolve(ctx context.Context, id string, strategy ResolutionStrategy, note string) (Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conflicts[id]
	if !ok {
		return Conflict{}, kiterr.NewConflictNotFound(id)
	}
	if c.Status == ConflictResolved {
		return Conflict{}, kiterr.NewConflictAlreadyResolved(id)
	}
	now := time.Now().UTC()
	c.Status = ConflictResolved
	c.Resolution = strategy
	c.Note = note
	c.ResolvedAt = &now
	s.conflicts[id] = c
	return c, nil
}

func (s *mockConflictStore) List(ctx context.Context, filter ConflictFilter) ([]Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Conflict
	for _, c := range s.conflicts {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *mockConflictStore) Counts(ctx context.Context) (ConflictCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts ConflictCounts
	for _, c := range s.conflicts {
		if c.Status == ConflictPending {
			counts.Pending++
		} else {
			counts.Resolved++
		}
	}
	return counts, nil
}

func (s *mockConflictStore) Close() error { return nil }
