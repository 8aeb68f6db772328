// Package bolt provides a Bolt (bbolt) implementation of the livesync
// ConflictStore: a single-file embedded store with JSON-encoded entries.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	livesync "github.com/knovault/go-live-sync"
	kiterr "github.com/knovault/go-live-sync/errors"
)

// bucketName is the single bucket holding conflicts keyed by id.
const bucketName = "Conflicts"

// Store wraps a bbolt database as a ConflictStore.
type Store struct {
	db *bbolt.DB
}

var _ livesync.ConflictStore = (*Store)(nil)

// Open opens (creating if necessary) the database file at path. The open
// timeout prevents two processes deadlocking on the same file.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, kiterr.NewStorageError(kiterr.OpRecord, fmt.Errorf("open bolt db: %w", err))
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, kiterr.NewStorageError(kiterr.OpRecord, fmt.Errorf("create bucket: %w", err))
	}

	return &Store{db: db}, nil
}

// Record inserts or updates the entry keyed by conflict id, never touching
// an entry that was already resolved.
func (s *Store) Record(ctx context.Context, c livesync.Conflict) error {
	c.Status = livesync.ConflictPending
	c.Resolution = ""
	c.ResolvedAt = nil

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if raw := b.Get([]byte(c.ID)); raw != nil {
			var existing livesync.Conflict
			if err := json.Unmarshal(raw, &existing); err == nil &&
				existing.Status == livesync.ConflictResolved {
				return nil
			}
		}
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return b.Put([]byte(c.ID), data)
	})
	if err != nil {
		return kiterr.NewStorageError(kiterr.OpRecord, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (livesync.Conflict, error) {
	var c livesync.Conflict
	found := false

	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &c)
	})
	if err != nil {
		return livesync.Conflict{}, kiterr.NewStorageError(kiterr.OpList, err)
	}
	if !found {
		return livesync.Conflict{}, kiterr.NewConflictNotFound(id)
	}
	return c, nil
}

func (s *Store) Resolve(ctx context.Context, id string, strategy livesync.ResolutionStrategy, note string) (livesync.Conflict, error) {
	var resolved livesync.Conflict
	var opErr error

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		raw := b.Get([]byte(id))
		if raw == nil {
			opErr = kiterr.NewConflictNotFound(id)
			return nil
		}
		var c livesync.Conflict
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
		if c.Status == livesync.ConflictResolved {
			opErr = kiterr.NewConflictAlreadyResolved(id)
			return nil
		}

		now := time.Now().UTC()
		c.Status = livesync.ConflictResolved
		c.Resolution = strategy
		c.Note = note
		c.ResolvedAt = &now

		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(id), data); err != nil {
			return err
		}
		resolved = c
		return nil
	})
	if err != nil {
		return livesync.Conflict{}, kiterr.NewStorageError(kiterr.OpResolve, err)
	}
	if opErr != nil {
		return livesync.Conflict{}, opErr
	}
	return resolved, nil
}

// List returns conflicts ordered by detection timestamp descending. Bolt has
// no secondary indexes; a client-side conflict set is small enough to sort
// in memory.
func (s *Store) List(ctx context.Context, filter livesync.ConflictFilter) ([]livesync.Conflict, error) {
	var out []livesync.Conflict

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var c livesync.Conflict
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("corrupt entry %q: %w", string(k), err)
			}
			if filter.Status != "" && c.Status != filter.Status {
				return nil
			}
			out = append(out, c)
			return nil
		})
	})
	if err != nil {
		return nil, kiterr.NewStorageError(kiterr.OpList, err)
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
	var counts livesync.ConflictCounts

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var c livesync.Conflict
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("corrupt entry %q: %w", string(k), err)
			}
			switch c.Status {
			case livesync.ConflictPending:
				counts.Pending++
			case livesync.ConflictResolved:
				counts.Resolved++
			}
			return nil
		})
	})
	if err != nil {
		return livesync.ConflictCounts{}, kiterr.NewStorageError(kiterr.OpList, err)
	}
	return counts, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
