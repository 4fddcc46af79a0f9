// Package runstore persists a durable ledger of pipeline runs to a local
// SQLite database, so a project's run history survives process restarts.
package runstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/lemonjerome/low-cortisol-html/internal/loop"
)

// Store records one row per pipeline run.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			ok INTEGER NOT NULL,
			stopped_reason TEXT,
			iterations_run INTEGER,
			substantive_edits INTEGER,
			validation_runs INTEGER,
			test_runs INTEGER,
			summary TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`)
	if err != nil {
		return fmt.Errorf("create runs index: %w", err)
	}
	return nil
}

// Record appends a completed run to the ledger.
func (s *Store) Record(task string, result *loop.Result) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, task, ok, stopped_reason, iterations_run, substantive_edits, validation_runs, test_runs, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, task, boolToInt(result.Ok), result.StoppedReason, result.IterationsRun,
		result.SubstantiveEdits, result.ValidationRuns, result.TestRuns, result.Summary,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Run is one row of the run ledger.
type Run struct {
	ID               string
	Task             string
	Ok               bool
	StoppedReason    string
	IterationsRun    int
	SubstantiveEdits int
	ValidationRuns   int
	TestRuns         int
	Summary          string
	CreatedAt        time.Time
}

// Recent returns the most recent runs, newest first, bounded by limit.
func (s *Store) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, task, ok, stopped_reason, iterations_run, substantive_edits, validation_runs, test_runs, summary, created_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var ok int
		if err := rows.Scan(&r.ID, &r.Task, &ok, &r.StoppedReason, &r.IterationsRun,
			&r.SubstantiveEdits, &r.ValidationRuns, &r.TestRuns, &r.Summary, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Ok = ok != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
