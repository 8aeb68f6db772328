package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	livesync "github.com/knovault/go-live-sync"
	kiterr "github.com/knovault/go-live-sync/errors"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "conflicts.db")
	store, err := New(DefaultConfig(path))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testConflict(id, path string, detected time.Time) livesync.Conflict {
	return livesync.Conflict{
		ID:         id,
		Path:       path,
		LocalHash:  "aaa",
		RemoteHash: "bbb",
		Kind:       "content_divergence",
		Status:     livesync.ConflictPending,
		DetectedAt: detected,
	}
}

func TestRecordGetRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	detected := time.Date(2026, 2, 3, 9, 30, 0, 0, time.UTC)
	c := testConflict("c1", "/notes/a.md", detected)
	if err := store.Record(ctx, c); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Path != "/notes/a.md" || got.LocalHash != "aaa" || got.RemoteHash != "bbb" {
		t.Errorf("unexpected conflict: %+v", got)
	}
	if !got.DetectedAt.Equal(detected) {
		t.Errorf("expected detected_at %v, got %v", detected, got.DetectedAt)
	}
	if got.Status != livesync.ConflictPending || got.ResolvedAt != nil {
		t.Errorf("expected pending conflict, got %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	if !kiterr.IsNotFound(err) {
		t.Errorf("expected not-found error, got: %v", err)
	}
}

func TestResolveOnce(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, testConflict("c1", "/notes/a.md", time.Now().UTC())); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	resolved, err := store.Resolve(ctx, "c1", livesync.KeepRemote, "remote wins")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != livesync.ConflictResolved || resolved.Resolution != livesync.KeepRemote {
		t.Errorf("unexpected resolved conflict: %+v", resolved)
	}
	if resolved.ResolvedAt == nil {
		t.Error("expected ResolvedAt to be set")
	}

	if _, err := store.Resolve(ctx, "c1", livesync.KeepLocal, ""); !kiterr.IsAlreadyResolved(err) {
		t.Errorf("expected already-resolved error, got: %v", err)
	}
	if _, err := store.Resolve(ctx, "missing", livesync.KeepLocal, ""); !kiterr.IsNotFound(err) {
		t.Errorf("expected not-found error, got: %v", err)
	}
}

func TestRecordUpsertGuard(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c := testConflict("c1", "/notes/a.md", time.Now().UTC())
	if err := store.Record(ctx, c); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Redelivery while pending refreshes the hashes.
	c.RemoteHash = "ccc"
	if err := store.Record(ctx, c); err != nil {
		t.Fatalf("re-Record failed: %v", err)
	}
	got, _ := store.Get(ctx, "c1")
	if got.RemoteHash != "ccc" {
		t.Errorf("expected refreshed remote hash, got %q", got.RemoteHash)
	}

	// Redelivery after resolution is a no-op.
	if _, err := store.Resolve(ctx, "c1", livesync.KeepBoth, ""); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	c.RemoteHash = "ddd"
	if err := store.Record(ctx, c); err != nil {
		t.Fatalf("post-resolve Record failed: %v", err)
	}
	got, _ = store.Get(ctx, "c1")
	if got.Status != livesync.ConflictResolved || got.RemoteHash != "ccc" {
		t.Errorf("resolved conflict was modified: %+v", got)
	}
}

func TestListAndCounts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	for _, c := range []livesync.Conflict{
		testConflict("c1", "/notes/a.md", base),
		testConflict("c2", "/notes/b.md", base.Add(2*time.Minute)),
		testConflict("c3", "/notes/c.md", base.Add(1*time.Minute)),
	} {
		if err := store.Record(ctx, c); err != nil {
			t.Fatalf("Record %s failed: %v", c.ID, err)
		}
	}
	if _, err := store.Resolve(ctx, "c2", livesync.KeepLocal, ""); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	all, err := store.List(ctx, livesync.ConflictFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	wantOrder := []string{"c2", "c3", "c1"}
	if len(all) != len(wantOrder) {
		t.Fatalf("expected %d conflicts, got %d", len(wantOrder), len(all))
	}
	for i, want := range wantOrder {
		if all[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, all[i].ID)
		}
	}

	pending, err := store.List(ctx, livesync.ConflictFilter{Status: livesync.ConflictPending})
	if err != nil {
		t.Fatalf("List pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending, got %d", len(pending))
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts.Pending != 2 || counts.Resolved != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestClosedStore(t *testing.T) {
	store := setupTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := store.Record(context.Background(), testConflict("c1", "/x", time.Now())); err == nil {
		t.Error("expected error from closed store")
	}
	if _, err := store.List(context.Background(), livesync.ConflictFilter{}); err == nil {
		t.Error("expected error from closed store")
	}
}
