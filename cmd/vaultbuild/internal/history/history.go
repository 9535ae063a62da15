// Package history records build runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Run is one recorded build.
type Run struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Added     int           `json:"added"`
	Updated   int           `json:"updated"`
	Cached    int           `json:"cached"`
	Moved     int           `json:"moved"`
	Removed   int           `json:"removed"`
	Failed    int           `json:"failed"`
	Saved     bool          `json:"saved"`
	ColdStart bool          `json:"cold_start"`
}

// Changed returns the number of files that needed publishing.
func (r Run) Changed() int {
	return r.Added + r.Updated + r.Moved + r.Removed
}

// Store is a SQLite-backed run log.
// Safe for concurrent use via sql.DB's connection pool.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
// Creates parent directories if they don't exist.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return newStore(db)
}

// OpenInMemory creates an in-memory database (useful for testing).
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory history: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newStore(db)
}

func newStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			added INTEGER NOT NULL DEFAULT 0,
			updated INTEGER NOT NULL DEFAULT 0,
			cached INTEGER NOT NULL DEFAULT 0,
			moved INTEGER NOT NULL DEFAULT 0,
			removed INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			saved INTEGER NOT NULL DEFAULT 0,
			cold_start INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started
		ON runs(started_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record inserts run. Recording the same run id twice replaces the row.
func (s *Store) Record(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(run_id, started_at, duration_ms, added, updated, cached, moved, removed, failed, saved, cold_start)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.StartedAt.UnixMilli(),
		run.Duration.Milliseconds(),
		run.Added, run.Updated, run.Cached, run.Moved, run.Removed, run.Failed,
		boolInt(run.Saved), boolInt(run.ColdStart),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first. limit <= 0 means all.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT run_id, started_at, duration_ms, added, updated, cached, moved, removed, failed, saved, cold_start
		FROM runs
		ORDER BY started_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                  Run
			startedMs, durMs   int64
			saved, coldStarted int
		)
		if err := rows.Scan(&r.RunID, &startedMs, &durMs,
			&r.Added, &r.Updated, &r.Cached, &r.Moved, &r.Removed, &r.Failed,
			&saved, &coldStarted); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMs).UTC()
		r.Duration = time.Duration(durMs) * time.Millisecond
		r.Saved = saved != 0
		r.ColdStart = coldStarted != 0
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
