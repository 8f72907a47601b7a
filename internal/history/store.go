// Package history keeps a SQLite ledger of pipeline runs and of the outcome
// of every module handled in each run.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"symfetch/internal/types"
)

// Run is one pipeline run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Candidates int
	Attempted  int
	Fetched    int
	Failed     int
	TimedOut   int
	Archive    string
	Published  bool
	Error      string
}

// Attempt is the outcome for one module in a run.
type Attempt struct {
	RunID     string
	DebugFile string
	DebugID   string
	Outcome   types.OutcomeKind
	ExitCode  int
	Duration  time.Duration
	Reason    string
}

// AttemptsFrom converts fetch outcomes into ledger rows.
func AttemptsFrom(runID string, outcomes []types.FetchOutcome) []Attempt {
	attempts := make([]Attempt, 0, len(outcomes))
	for _, o := range outcomes {
		attempts = append(attempts, Attempt{
			RunID:     runID,
			DebugFile: o.Ref.DebugFile,
			DebugID:   o.Ref.DebugID,
			Outcome:   o.Kind,
			ExitCode:  o.ExitCode,
			Duration:  o.Duration,
			Reason:    o.Reason,
		})
	}
	return attempts
}

// Store is the run ledger.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open creates or opens the ledger at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		candidates INTEGER NOT NULL,
		attempted INTEGER NOT NULL,
		fetched INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		timed_out INTEGER NOT NULL,
		archive TEXT,
		published INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS attempts (
		run_id TEXT NOT NULL,
		debug_file TEXT NOT NULL,
		debug_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		reason TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_module ON attempts(debug_file, debug_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITES
// =============================================================================

// RecordRun stores run and its attempts in one transaction.
func (s *Store) RecordRun(ctx context.Context, run *Run, attempts []Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, candidates, attempted, fetched,
			failed, timed_out, archive, published, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Candidates, run.Attempted, run.Fetched,
		run.Failed, run.TimedOut, run.Archive, run.Published, run.Error)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attempts (run_id, debug_file, debug_id, outcome, exit_code, duration_ms, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare attempt insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range attempts {
		if _, err := stmt.ExecContext(ctx, run.ID, a.DebugFile, a.DebugID, string(a.Outcome),
			a.ExitCode, a.Duration.Milliseconds(), a.Reason); err != nil {
			return fmt.Errorf("failed to record attempt %s/%s: %w", a.DebugFile, a.DebugID, err)
		}
	}

	return tx.Commit()
}

// =============================================================================
// READS
// =============================================================================

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, candidates, attempted, fetched, failed, timed_out,
			archive, published, error
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var archive, errText sql.NullString
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Candidates, &r.Attempted,
			&r.Fetched, &r.Failed, &r.TimedOut, &archive, &r.Published, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Archive = archive.String
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Attempts returns the attempts of runID sorted by module.
func (s *Store) Attempts(ctx context.Context, runID string) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, debug_file, debug_id, outcome, exit_code, duration_ms, reason
		FROM attempts
		WHERE run_id = ?
		ORDER BY debug_file, debug_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var outcome string
		var durationMS int64
		var reason sql.NullString
		if err := rows.Scan(&a.RunID, &a.DebugFile, &a.DebugID, &outcome, &a.ExitCode, &durationMS, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Outcome = types.OutcomeKind(outcome)
		a.Duration = time.Duration(durationMS) * time.Millisecond
		a.Reason = reason.String
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
