// Package store implements phase-tracker's durable metadata store: a
// transactional SQLite-backed repository layer for runs, stage
// attempts, artifacts, events, and run locks.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	phaseerrors "github.com/harlanreed/phasetracker/internal/errors"
)

// Store is the SQLite-backed metadata store. A process opens at most
// one *Store per database path; Open is safe to call concurrently and
// returns the same pooled connection for a given path.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var (
	openMu    sync.Mutex
	openPools = map[string]*Store{}
)

// Open returns the pooled Store for path, opening and migrating it on
// first use. SQLite serializes writers, so the pool is capped at one
// connection, matching the teacher's single-writer SQLite backend.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	openMu.Lock()
	defer openMu.Unlock()

	if s, ok := openPools[path]; ok {
		return s, nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &phaseerrors.StoreError{Op: "open", Cause: err}
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &phaseerrors.StoreError{Op: "ping", Cause: err}
	}

	s := &Store{db: db, path: path, logger: logger}

	if err := s.configurePragmas(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	openPools[path] = s
	return s, nil
}

func (s *Store) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return &phaseerrors.StoreError{Op: "pragma " + p, Cause: err}
		}
	}
	return nil
}

// Migrate applies the schema. It is idempotent: running it any number
// of times converges on the same schema (testable property #7).
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			industry TEXT NOT NULL,
			country TEXT NOT NULL,
			client_context TEXT,
			target_stage TEXT,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			finished_at TEXT,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE TABLE IF NOT EXISTS stage_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			duration_ms INTEGER,
			error TEXT,
			UNIQUE(run_id, stage, attempt),
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stage_attempts_run ON stage_attempts(run_id, stage)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			filename TEXT NOT NULL,
			path TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			content_type TEXT NOT NULL,
			PRIMARY KEY(run_id, stage, attempt, filename),
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			stage TEXT,
			attempt INTEGER,
			type TEXT NOT NULL,
			message TEXT NOT NULL,
			data TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, stage, type)`,
		`CREATE TABLE IF NOT EXISTS run_locks (
			run_id TEXT PRIMARY KEY,
			holder TEXT NOT NULL,
			lock_id TEXT NOT NULL,
			acquired_at TEXT NOT NULL,
			heartbeat_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &phaseerrors.StoreError{Op: fmt.Sprintf("migrate: %s", stmt), Cause: err}
		}
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &phaseerrors.StoreError{Op: "begin tx", Cause: err}
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return &phaseerrors.StoreError{Op: "rollback", Cause: rbErr}
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return &phaseerrors.StoreError{Op: "commit", Cause: err}
	}
	return nil
}

// Close closes the underlying database connection and removes it from
// the process pool.
func (s *Store) Close() error {
	openMu.Lock()
	delete(openPools, s.path)
	openMu.Unlock()
	return s.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}
