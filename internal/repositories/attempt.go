package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/vodsync/internal/models"
	"github.com/desertthunder/vodsync/internal/shared"
)

const maxDiagnosticLength = 2000

// AttemptRepository persists [models.AttemptRecord] rows.
type AttemptRepository struct {
	db *sql.DB
}

// NewAttemptRepository creates a new [AttemptRepository] with the given database connection
func NewAttemptRepository(db *sql.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Create inserts an attempt with generated ID and sequence. Long diagnostics are truncated.
func (r *AttemptRepository) Create(a *models.AttemptRecord) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "upload_attempts")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if a.ID == "" {
		a.ID = shared.GenerateID()
	}
	a.Sequence = sequence
	a.Diagnostic = shared.Truncate(a.Diagnostic, maxDiagnosticLength)

	query := `
		INSERT INTO upload_attempts (
			id, sequence, run_id, vod_id, owner, attempt, degraded, outcome,
			exit_code, diagnostic, title, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		a.ID, a.Sequence, a.RunID, a.VodID, a.Owner, a.Attempt, a.Degraded, a.Outcome.String(),
		a.ExitCode, a.Diagnostic, a.Title, a.StartedAt.UTC(), a.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

const attemptColumns = `
	id, sequence, run_id, vod_id, owner, attempt, degraded, outcome,
	exit_code, diagnostic, title, started_at, finished_at
`

// ListByVod returns every attempt for a VOD, oldest first.
func (r *AttemptRepository) ListByVod(vodID string) ([]models.AttemptRecord, error) {
	return r.list(`SELECT`+attemptColumns+`FROM upload_attempts WHERE vod_id = ? ORDER BY sequence ASC`, vodID)
}

// ListByRun returns the attempts of one run, oldest first.
func (r *AttemptRepository) ListByRun(runID string) ([]models.AttemptRecord, error) {
	return r.list(`SELECT`+attemptColumns+`FROM upload_attempts WHERE run_id = ? ORDER BY sequence ASC`, runID)
}

// Recent returns the newest limit attempts, newest first.
func (r *AttemptRepository) Recent(limit int) ([]models.AttemptRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.list(`SELECT`+attemptColumns+`FROM upload_attempts ORDER BY sequence DESC LIMIT ?`, limit)
}

func (r *AttemptRepository) list(query string, args ...any) ([]models.AttemptRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.AttemptRecord
	for rows.Next() {
		var (
			a       models.AttemptRecord
			outcome string
		)
		err := rows.Scan(
			&a.ID, &a.Sequence, &a.RunID, &a.VodID, &a.Owner, &a.Attempt, &a.Degraded, &outcome,
			&a.ExitCode, &a.Diagnostic, &a.Title, &a.StartedAt, &a.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		if a.Outcome, err = models.ParseOutcome(outcome); err != nil {
			return nil, fmt.Errorf("attempt %s: %w", a.ID, err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}
	return attempts, nil
}
