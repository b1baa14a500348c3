package validator

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ProgressStore persists per-instance outcomes so an interrupted batch can
// resume without redoing finished work.
type ProgressStore struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// ProgressPath returns the store location inside an output directory.
func ProgressPath(outputDir string) string {
	return filepath.Join(outputDir, "validation_progress.db")
}

// OpenProgress opens the progress database at the given path.
// It creates the parent directories if they don't exist.
// WAL mode is enabled for concurrent reads.
func OpenProgress(path string) (*ProgressStore, error) {
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
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	store := &ProgressStore{conn: conn, path: path}
	if err := store.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *ProgressStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *ProgressStore) Path() string {
	return s.path
}

// migrate applies all pending schema migrations.
func (s *ProgressStore) migrate() error {
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
		{1, migrationV1Instances},
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

const migrationV1Instances = `
CREATE TABLE IF NOT EXISTS instances (
	instance_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	success INTEGER NOT NULL DEFAULT 0,
	stage TEXT NOT NULL,
	error_message TEXT,
	fail_to_pass INTEGER NOT NULL DEFAULT 0,
	pass_to_fail INTEGER NOT NULL DEFAULT 0,
	duration_seconds REAL NOT NULL DEFAULT 0,
	completed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instances_success ON instances(success);
`

// Record upserts an instance's terminal outcome.
func (s *ProgressStore) Record(runID string, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	success := 0
	if r.Success {
		success = 1
	}
	_, err := s.conn.Exec(`
		INSERT INTO instances (instance_id, run_id, success, stage, error_message, fail_to_pass, pass_to_fail, duration_seconds, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			run_id=excluded.run_id,
			success=excluded.success,
			stage=excluded.stage,
			error_message=excluded.error_message,
			fail_to_pass=excluded.fail_to_pass,
			pass_to_fail=excluded.pass_to_fail,
			duration_seconds=excluded.duration_seconds,
			completed_at=excluded.completed_at
	`, r.InstanceID, runID, success, string(r.Stage), r.ErrorMessage,
		r.FailToPassCount, r.PassToFailCount, r.TotalDurationSecs, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("record instance %s: %w", r.InstanceID, err)
	}
	return nil
}

// Completed returns the ids of every instance already recorded, mapped to
// whether it succeeded.
func (s *ProgressStore) Completed() (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query("SELECT instance_id, success FROM instances")
	if err != nil {
		return nil, fmt.Errorf("query completed instances: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var id string
		var success int
		if err := rows.Scan(&id, &success); err != nil {
			return nil, fmt.Errorf("scan instance row: %w", err)
		}
		done[id] = success == 1
	}
	return done, rows.Err()
}

// Forget drops the recorded outcome for the given ids so they rerun.
func (s *ProgressStore) Forget(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, err := s.conn.Exec("DELETE FROM instances WHERE instance_id = ?", id); err != nil {
			return fmt.Errorf("forget instance %s: %w", id, err)
		}
	}
	return nil
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
