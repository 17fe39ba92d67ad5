// Package history records completed scheduler runs in SQLite so
// operators can audit what each agent did and how each attempt ended.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one delivery attempt and its result.
type Run struct {
	ID         int64
	TaskID     string
	TaskTitle  string
	Agent      string
	SessionKey string
	// Outcome is the classified reply outcome, empty when the run
	// failed before a reply arrived.
	Outcome string
	// ErrorClass is the transport failure class, empty on success.
	ErrorClass string
	Evidence   string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store wraps the SQLite run log. A nil *Store is valid and drops all
// writes, so the engine runs fine without a database.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens the run history database at the given path, creating
// parent directories and applying pending migrations. WAL mode is
// enabled for concurrent reads.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// migrate applies all pending schema migrations.
func (s *Store) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Runs},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Runs = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	task_title TEXT NOT NULL,
	agent TEXT NOT NULL,
	session_key TEXT NOT NULL,
	outcome TEXT NOT NULL DEFAULT '',
	error_class TEXT NOT NULL DEFAULT '',
	evidence TEXT NOT NULL DEFAULT '',
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_task_id ON runs(task_id);
CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
`

// RecordRun appends one finished run. A nil store drops the write.
func (s *Store) RecordRun(run Run) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		INSERT INTO runs (task_id, task_title, agent, session_key, outcome, error_class, evidence, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.TaskID, run.TaskTitle, run.Agent, run.SessionKey, run.Outcome, run.ErrorClass, run.Evidence,
		formatTime(run.StartedAt), formatTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	if s == nil {
		return nil, nil
	}
	return s.queryRuns(`
		SELECT id, task_id, task_title, agent, session_key, outcome, error_class, evidence, started_at, finished_at
		FROM runs ORDER BY finished_at DESC, id DESC LIMIT ?
	`, limit)
}

// ListByTask returns all runs for one task, newest first.
func (s *Store) ListByTask(taskID string) ([]Run, error) {
	if s == nil {
		return nil, nil
	}
	return s.queryRuns(`
		SELECT id, task_id, task_title, agent, session_key, outcome, error_class, evidence, started_at, finished_at
		FROM runs WHERE task_id = ? ORDER BY finished_at DESC, id DESC
	`, taskID)
}

func (s *Store) queryRuns(query string, args ...any) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.TaskID, &r.TaskTitle, &r.Agent, &r.SessionKey,
			&r.Outcome, &r.ErrorClass, &r.Evidence, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = parseTime(started)
		r.FinishedAt, _ = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PurgeOldRuns deletes runs that finished before the cutoff and returns
// the number of runs deleted.
func (s *Store) PurgeOldRuns(olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := formatTime(time.Now().Add(-olderThan))
	result, err := s.conn.Exec(`DELETE FROM runs WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old runs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

// formatTime formats a time.Time for SQLite storage. UTC RFC3339 sorts
// lexicographically, which the ORDER BY clauses rely on.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
