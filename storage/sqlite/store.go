// Package sqlite provides a SQLite implementation of the livesync
// ConflictStore for clients that need conflicts to survive a restart.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	livesync "github.com/knovault/go-live-sync"
	kiterr "github.com/knovault/go-live-sync/errors"
	"github.com/knovault/go-live-sync/logging"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// Config holds configuration options for the Store.
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	// Example: "file:conflicts.db?_journal_mode=WAL"
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// When true, automatically appends "?_journal_mode=WAL" to DataSourceName.
	EnableWAL bool

	// TableName defaults to "conflicts" if empty.
	TableName string

	// Connection pool settings. Defaults: MaxOpen=10, MaxIdle=2.
	MaxOpenConns int
	MaxIdleConns int
}

// setDefaults applies default values to the config
func (c *Config) setDefaults() {
	if c.TableName == "" {
		c.TableName = "conflicts"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 2
	}
	if c.EnableWAL {
		if !strings.Contains(c.DataSourceName, "?_journal_mode=") {
			c.DataSourceName += "?_journal_mode=WAL"
		}
	}
}

// DefaultConfig returns a Config with WAL mode enabled.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// Store implements the livesync.ConflictStore interface for SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	logger *logging.Logger
	table  string
}

// Compile-time check that Store satisfies the ConflictStore interface
var _ livesync.ConflictStore = (*Store)(nil)

// New creates a Store from a Config.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.setDefaults()
	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	logger := logging.Default().WithComponent(logging.Component("sqlite-store"))
	logger.Info("opening SQLite conflict store",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, kiterr.NewStorageError(kiterr.OpRecord, fmt.Errorf("open database: %w", err))
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	store := &Store{
		db:     db,
		logger: logger,
		table:  config.TableName,
	}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDataSource is a convenience constructor with default config.
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

func (s *Store) createSchema() error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          TEXT PRIMARY KEY,
			path        TEXT NOT NULL,
			local_hash  TEXT NOT NULL DEFAULT '',
			remote_hash TEXT NOT NULL DEFAULT '',
			kind        TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			resolution  TEXT NOT NULL DEFAULT '',
			note        TEXT NOT NULL DEFAULT '',
			detected_at INTEGER NOT NULL,
			resolved_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_%s_detected_at ON %s(detected_at DESC);
		CREATE INDEX IF NOT EXISTS idx_%s_status ON %s(status);
	`, s.table, s.table, s.table, s.table, s.table)

	if _, err := s.db.Exec(schema); err != nil {
		return kiterr.NewStorageError(kiterr.OpRecord, fmt.Errorf("create schema: %w", err))
	}
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return kiterr.NewStorageError(kiterr.OpRecord, fmt.Errorf("store is closed"))
	}
	return nil
}

// Record inserts or updates the entry keyed by conflict id. The upsert only
// touches rows still pending, so a re-announcement can never re-open a
// resolved conflict.
func (s *Store) Record(ctx context.Context, c livesync.Conflict) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, path, local_hash, remote_hash, kind, status, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path        = excluded.path,
			local_hash  = excluded.local_hash,
			remote_hash = excluded.remote_hash,
			kind        = excluded.kind,
			detected_at = excluded.detected_at
		WHERE %s.status = ?
	`, s.table, s.table)

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Path, c.LocalHash, c.RemoteHash, c.Kind,
		string(livesync.ConflictPending), c.DetectedAt.UnixNano(),
		string(livesync.ConflictPending),
	)
	if err != nil {
		return kiterr.NewStorageError(kiterr.OpRecord, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (livesync.Conflict, error) {
	if err := s.checkOpen(); err != nil {
		return livesync.Conflict{}, err
	}

	query := fmt.Sprintf(`
		SELECT id, path, local_hash, remote_hash, kind, status, resolution, note, detected_at, resolved_at
		FROM %s WHERE id = ?
	`, s.table)

	c, err := scanConflict(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return livesync.Conflict{}, kiterr.NewConflictNotFound(id)
	}
	if err != nil {
		return livesync.Conflict{}, kiterr.NewStorageError(kiterr.OpList, err)
	}
	return c, nil
}

// Resolve marks a pending conflict resolved inside one transaction so two
// racing resolvers cannot both win.
func (s *Store) Resolve(ctx context.Context, id string, strategy livesync.ResolutionStrategy, note string) (livesync.Conflict, error) {
	if err := s.checkOpen(); err != nil {
		return livesync.Conflict{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return livesync.Conflict{}, kiterr.NewStorageError(kiterr.OpResolve, err)
	}
	defer tx.Rollback()

	var status string
	row := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT status FROM %s WHERE id = ?", s.table), id)
	if err := row.Scan(&status); err == sql.ErrNoRows {
		return livesync.Conflict{}, kiterr.NewConflictNotFound(id)
	} else if err != nil {
		return livesync.Conflict{}, kiterr.NewStorageError(kiterr.OpResolve, err)
	}
	if status == string(livesync.ConflictResolved) {
		return livesync.Conflict{}, kiterr.NewConflictAlreadyResolved(id)
	}

	resolvedAt := time.Now().UTC()
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET status = ?, resolution = ?, note = ?, resolved_at = ?
		WHERE id = ? AND status = ?
	`, s.table),
		string(livesync.ConflictResolved), string(strategy), note, resolvedAt.UnixNano(),
		id, string(livesync.ConflictPending),
	)
	if err != nil {
		return livesync.Conflict{}, kiterr.NewStorageError(kiterr.OpResolve, err)
	}

	query := fmt.Sprintf(`
		SELECT id, path, local_hash, remote_hash, kind, status, resolution, note, detected_at, resolved_at
		FROM %s WHERE id = ?
	`, s.table)
	c, err := scanConflict(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return livesync.Conflict{}, kiterr.NewStorageError(kiterr.OpResolve, err)
	}

	if err := tx.Commit(); err != nil {
		return livesync.Conflict{}, kiterr.NewStorageError(kiterr.OpResolve, err)
	}
	return c, nil
}

// List returns conflicts ordered by detection timestamp descending.
func (s *Store) List(ctx context.Context, filter livesync.ConflictFilter) ([]livesync.Conflict, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, path, local_hash, remote_hash, kind, status, resolution, note, detected_at, resolved_at
		FROM %s
	`, s.table)
	args := []interface{}{}
	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY detected_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kiterr.NewStorageError(kiterr.OpList, err)
	}
	defer rows.Close()

	var out []livesync.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, kiterr.NewStorageError(kiterr.OpList, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, kiterr.NewStorageError(kiterr.OpList, err)
	}
	return out, nil
}

func (s *Store) Counts(ctx context.Context) (livesync.ConflictCounts, error) {
	if err := s.checkOpen(); err != nil {
		return livesync.ConflictCounts{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT status, COUNT(*) FROM %s GROUP BY status", s.table))
	if err != nil {
		return livesync.ConflictCounts{}, kiterr.NewStorageError(kiterr.OpList, err)
	}
	defer rows.Close()

	var counts livesync.ConflictCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return livesync.ConflictCounts{}, kiterr.NewStorageError(kiterr.OpList, err)
		}
		switch livesync.ConflictStatus(status) {
		case livesync.ConflictPending:
			counts.Pending = n
		case livesync.ConflictResolved:
			counts.Resolved = n
		}
	}
	return counts, rows.Err()
}

// Close closes the store. Further calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConflict(row rowScanner) (livesync.Conflict, error) {
	var c livesync.Conflict
	var status, resolution string
	var detectedAt int64
	var resolvedAt sql.NullInt64

	err := row.Scan(&c.ID, &c.Path, &c.LocalHash, &c.RemoteHash, &c.Kind,
		&status, &resolution, &c.Note, &detectedAt, &resolvedAt)
	if err != nil {
		return livesync.Conflict{}, err
	}

	c.Status = livesync.ConflictStatus(status)
	c.Resolution = livesync.ResolutionStrategy(resolution)
	c.DetectedAt = time.Unix(0, detectedAt).UTC()
	if resolvedAt.Valid {
		t := time.Unix(0, resolvedAt.Int64).UTC()
		c.ResolvedAt = &t
	}
	return c, nil
}
