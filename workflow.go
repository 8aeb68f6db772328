package livesync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	kiterr "github.com/knovault/go-live-sync/errors"
	"github.com/knovault/go-live-sync/logging"
	"github.com/knovault/go-live-sync/wire"
)

// CommandSender is the upstream half the resolution workflow needs from the
// connection manager.
type CommandSender interface {
	SendOrQueue(cmd wire.Command) error
}

// Workflow orchestrates resolving a conflict: it validates the request,
// applies the transition in the store, and relays the decision upstream
// best-effort. Local state is the source of truth for display; a failed
// upstream send is queued, never rolled back.
type Workflow struct {
	store  ConflictStore
	sender CommandSender
	logger *logging.Logger
}

// NewWorkflow creates a resolution workflow. sender may be nil for an
// offline-only store.
func NewWorkflow(store ConflictStore, sender CommandSender, logger *logging.Logger) *Workflow {
	if logger == nil {
		logger = logging.Default().WithComponent(logging.Component("workflow"))
	}
	return &Workflow{
		store:  store,
		sender: sender,
		logger: logger,
	}
}

// Resolve settles the conflict with the user-chosen strategy and returns the
// updated Conflict for display. The strategy is opaque here: keep_both does
// not merge anything, the collaborator owns content semantics.
func (w *Workflow) Resolve(ctx context.Context, id string, strategy ResolutionStrategy, note string) (Conflict, error) {
	if id == "" {
		return Conflict{}, kiterr.NewValidationError(kiterr.OpResolve, fmt.Errorf("empty conflict id"))
	}
	if !strategy.Valid() {
		return Conflict{}, kiterr.NewValidationError(kiterr.OpResolve, fmt.Errorf("unknown resolution strategy %q", strategy))
	}

	resolved, err := w.store.Resolve(ctx, id, strategy, note)
	if err != nil {
		return Conflict{}, err
	}

	w.logger.Info("conflict resolved",
		slog.String("conflict_id", id),
		slog.String("strategy", string(strategy)),
	)

	if w.sender != nil {
		cmd := wire.ResolveConflict{
			CommandID:  uuid.NewString(),
			ConflictID: resolved.ID,
			Strategy:   string(resolved.Resolution),
			Note:       resolved.Note,
		}
		if err := w.sender.SendOrQueue(cmd); err != nil {
			// Best-effort: the local resolution stands, the server
			// reconciles from its own state on reconnect.
			w.logger.LogError(ctx, err, "could not relay resolution upstream",
				slog.String("conflict_id", id))
		}
	}

	return resolved, nil
}

// Pending lists the conflicts still awaiting a decision, most recent first.
func (w *Workflow) Pending(ctx context.Context) ([]Conflict, error) {
	return w.store.List(ctx, ConflictFilter{Status: ConflictPending})
}
