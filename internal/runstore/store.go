// Package runstore persists pipeline run history in SQLite: one row per
// run session plus a stage record for every stage outcome. The status
// command reads it; the run command writes it.
package runstore

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
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; mismatched databases must be deleted and recreated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match
// the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Run is one pipeline invocation.
type Run struct {
	SessionID  string
	Source     string
	Episode    string
	Outcome    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// StageRecord is one stage outcome within a run.
type StageRecord struct {
	SessionID  string
	Stage      string
	Status     string
	Duration   time.Duration
	Error      string
	RecordedAt time.Time
}

// Store manages run-history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// Open initializes or connects to the run-history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// StartRun records the beginning of a pipeline session.
func (s *Store) StartRun(ctx context.Context, sessionID, source, episode string) error {
	err := s.execWithRetry(ctx,
		`INSERT INTO runs (session_id, source, episode, outcome, started_at) VALUES (?, ?, ?, 'running', ?)`,
		sessionID, source, episode, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stamps a session's outcome and finish time.
func (s *Store) FinishRun(ctx context.Context, sessionID, outcome string) error {
	err := s.execWithRetry(ctx,
		`UPDATE runs SET outcome = ?, finished_at = ? WHERE session_id = ?`,
		outcome, s.now().UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RecordStage appends one stage outcome to a session.
func (s *Store) RecordStage(ctx context.Context, rec StageRecord) error {
	var errText any
	if rec.Error != "" {
		errText = rec.Error
	}
	err := s.execWithRetry(ctx,
		`INSERT INTO stage_records (session_id, stage, status, duration_ms, error, recorded_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Stage, rec.Status, rec.Duration.Milliseconds(), errText,
		s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert stage record: %w", err)
	}
	return nil
}

// Runs lists sessions newest first, optionally filtered by source.
func (s *Store) Runs(ctx context.Context, source string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT session_id, source, episode, outcome, started_at, finished_at FROM runs`
	args := []any{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		var started string
		var finished sql.NullString
		if err := rows.Scan(&run.SessionID, &run.Source, &run.Episode, &run.Outcome, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// StageRecords lists a session's stage outcomes in recording order.
func (s *Store) StageRecords(ctx context.Context, sessionID string) ([]StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, stage, status, duration_ms, error, recorded_at
         FROM stage_records WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query stage records: %w", err)
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var rec StageRecord
		var durationMS int64
		var errText sql.NullString
		var recorded string
		if err := rows.Scan(&rec.SessionID, &rec.Stage, &rec.Status, &durationMS, &errText, &recorded); err != nil {
			return nil, fmt.Errorf("scan stage record: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if errText.Valid {
			rec.Error = errText.String
		}
		rec.RecordedAt, _ = time.Parse(time.RFC3339Nano, recorded)
		out = append(out, rec)
	}
	return out, rows.Err()
}
