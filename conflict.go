package livesync

import (
	"context"
	"time"

	"github.com/knovault/go-live-sync/wire"
)

// ConflictStatus is the lifecycle state of a conflict. A conflict moves from
// pending to resolved exactly once; nothing re-opens a resolved conflict.
type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
)

// ResolutionStrategy is the closed set of policies a user can pick to settle
// a conflict. The strategies are opaque to this library: "keep_both" does not
// merge content here, it only records and relays the decision.
type ResolutionStrategy string

const (
	KeepLocal  ResolutionStrategy = "keep_local"
	KeepRemote ResolutionStrategy = "keep_remote"
	KeepBoth   ResolutionStrategy = "keep_both"
)

// Valid reports whether s is one of the known strategies.
func (s ResolutionStrategy) Valid() bool {
	switch s {
	case KeepLocal, KeepRemote, KeepBoth:
		return true
	}
	return false
}

// Conflict is a detected divergence between a local and a remote version of
// an artifact. Owned by a ConflictStore; mutated only through Resolve.
type Conflict struct {
	ID         string             `json:"id"`
	Path       string             `json:"path"`
	LocalHash  string             `json:"local_hash"`
	RemoteHash string             `json:"remote_hash"`
	Kind       string             `json:"kind"`
	Status     ConflictStatus     `json:"status"`
	Resolution ResolutionStrategy `json:"resolution,omitempty"`
	Note       string             `json:"note,omitempty"`
	DetectedAt time.Time          `json:"detected_at"`
	ResolvedAt *time.Time         `json:"resolved_at,omitempty"`
}

// ConflictFromEvent builds a pending Conflict from its wire announcement.
// A missing detection timestamp falls back to the local clock.
func ConflictFromEvent(ev wire.ConflictDetected) Conflict {
	detectedAt := ev.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now().UTC()
	}
	return Conflict{
		ID:         ev.ID,
		Path:       ev.Path,
		LocalHash:  ev.LocalHash,
		RemoteHash: ev.RemoteHash,
		Kind:       ev.Kind,
		Status:     ConflictPending,
		DetectedAt: detectedAt,
	}
}

// ConflictFilter narrows List results. A zero filter matches everything.
type ConflictFilter struct {
	// Status matches only conflicts in this state when non-empty
	Status ConflictStatus
}

// ConflictCounts summarizes a store for badge rendering.
type ConflictCounts struct {
	Pending  int
	Resolved int
}

// ConflictStore persists the set of known conflicts and their resolution
// status. Implementations can use any storage backend (memory, SQLite, Bolt).
type ConflictStore interface {
	// Record inserts or updates the entry keyed by conflict id. Repeated
	// identical detections are idempotent, and a re-announcement of an
	// already-resolved conflict is ignored.
	Record(ctx context.Context, c Conflict) error

	// Get returns the conflict with the given id
	Get(ctx context.Context, id string) (Conflict, error)

	// Resolve marks a pending conflict resolved with the chosen strategy.
	// Fails with CONFLICT_NOT_FOUND for unknown ids and with
	// CONFLICT_ALREADY_RESOLVED when the transition already happened.
	Resolve(ctx context.Context, id string, strategy ResolutionStrategy, note string) (Conflict, error)

	// List returns conflicts ordered by detection timestamp descending,
	// most recent first, optionally filtered by status.
	List(ctx context.Context, filter ConflictFilter) ([]Conflict, error)

	// Counts returns how many conflicts are pending and resolved
	Counts(ctx context.Context) (ConflictCounts, error)

	// Close closes the store and releases resources
	Close() error
}
