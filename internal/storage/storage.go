// Package storage is the sqlite-backed data layer. All stores share one
// handle and are constructor-injected into the components that need them;
// nothing in this package is a singleton.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"beacon/internal/logging"
)

//go:embed migrations.sql
var migrations string

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Config controls how the database is opened.
type Config struct {
	// Path to the database file. ":memory:" opens an in-memory database
	// (used by tests).
	Path        string
	BusyTimeout time.Duration
}

// DB wraps the sqlite handle and exposes the individual stores.
type DB struct {
	db  *sql.DB
	log logging.Logger
}

// Open opens (creating if needed) the database and applies migrations.
func Open(cfg Config, log logging.Logger) (*DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: path is required")
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	s := &DB{db: db, log: logging.OrNop(log)}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying handle.
func (s *DB) Close() error {
	return s.db.Close()
}

// Ping verifies the data layer is reachable. The scheduler aborts the whole
// tick when this fails.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DB) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migrations); err != nil {
		return err
	}
	s.log.Debug("storage: migrations applied")
	return nil
}

// Jobs returns the scheduled-job store.
func (s *DB) Jobs() *JobStore { return &JobStore{db: s.db} }

// Settings returns the tenant-settings store.
func (s *DB) Settings() *SettingsStore { return &SettingsStore{db: s.db} }

// Prefs returns the per-user job preference store.
func (s *DB) Prefs() *PrefStore { return &PrefStore{db: s.db} }

// Interventions returns the intervention store.
func (s *DB) Interventions() *InterventionStore { return &InterventionStore{db: s.db} }

// ExecutionLog returns the append-only execution log.
func (s *DB) ExecutionLog() *ExecutionLogStore { return &ExecutionLogStore{db: s.db} }

// RateLimits returns the rate-limit counter store.
func (s *DB) RateLimits() *RateLimitStore { return &RateLimitStore{db: s.db} }

// Outbox returns the durable task queue.
func (s *DB) Outbox() *OutboxStore { return &OutboxStore{db: s.db} }
