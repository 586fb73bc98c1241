package runner

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Run statuses in run_log.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunEntry is one run_log row.
type RunEntry struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Error      string
	Violations int
}

// RunLogRepository persists run history in forecast.db. Unlike the derived
// marts, run_log accumulates across runs.
type RunLogRepository struct {
	forecastDB *sql.DB
	log        zerolog.Logger
}

// NewRunLogRepository creates a new run-log repository
func NewRunLogRepository(forecastDB *sql.DB, log zerolog.Logger) *RunLogRepository {
	return &RunLogRepository{
		forecastDB: forecastDB,
		log:        log.With().Str("repo", "run_log").Logger(),
	}
}

// Start records a new running run.
func (r *RunLogRepository) Start(runID string, at time.Time) error {
	_, err := r.forecastDB.Exec(`
		INSERT INTO run_log (run_id, started_at, status, violations)
		VALUES (?, ?, ?, 0)`,
		runID, at.UTC().Format(time.RFC3339), StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to insert run_log row: %w", err)
	}
	return nil
}

// Complete marks a run finished successfully.
func (r *RunLogRepository) Complete(runID string, at time.Time, violations int) error {
	_, err := r.forecastDB.Exec(`
		UPDATE run_log SET finished_at = ?, status = ?, violations = ?
		WHERE run_id = ?`,
		at.UTC().Format(time.RFC3339), StatusCompleted, violations, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run_log row: %w", err)
	}
	return nil
}

// Fail marks a run failed with its error message.
func (r *RunLogRepository) Fail(runID string, at time.Time, runErr error, violations int) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := r.forecastDB.Exec(`
		UPDATE run_log SET finished_at = ?, status = ?, error = ?, violations = ?
		WHERE run_id = ?`,
		at.UTC().Format(time.RFC3339), StatusFailed, msg, violations, runID)
	if err != nil {
		return fmt.Errorf("failed to fail run_log row: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (r *RunLogRepository) List(limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.forecastDB.Query(`
		SELECT run_id, started_at, finished_at, status, COALESCE(error, ''), violations
		FROM run_log
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run_log: %w", err)
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var entry RunEntry
		var started string
		var finished sql.NullString
		if err := rows.Scan(&entry.RunID, &started, &finished, &entry.Status,
			&entry.Error, &entry.Violations); err != nil {
			return nil, fmt.Errorf("failed to scan run_log row: %w", err)
		}
		at, err := time.Parse(time.RFC3339, started)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		entry.StartedAt = at
		if finished.Valid {
			ft, err := time.Parse(time.RFC3339, finished.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse finished_at: %w", err)
			}
			entry.FinishedAt = &ft
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
