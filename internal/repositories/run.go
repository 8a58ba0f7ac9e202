package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/vodsync/internal/models"
	"github.com/desertthunder/vodsync/internal/shared"
)

// RunRepository persists [models.RunRecord] summaries.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run summary, generating an ID when the record has none.
func (r *RunRepository) Create(run *models.RunRecord) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}

	var resumeAt sql.NullTime
	if run.ResumeAt != nil {
		resumeAt = sql.NullTime{Time: run.ResumeAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO upload_runs (
			id, started_at, finished_at, considered, skipped, uploaded, failed, stop_reason, resume_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Considered, run.Skipped,
		run.Uploaded, run.Failed, run.StopReason, resumeAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(id string) (*models.RunRecord, error) {
	rows, err := r.query(`SELECT id, started_at, finished_at, considered, skipped, uploaded, failed, stop_reason, resume_at
		FROM upload_runs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return &rows[0], nil
}

// Recent returns the newest limit runs, newest first.
func (r *RunRepository) Recent(limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.query(`SELECT id, started_at, finished_at, considered, skipped, uploaded, failed, stop_reason, resume_at
		FROM upload_runs ORDER BY started_at DESC LIMIT ?`, limit)
}

func (r *RunRepository) query(query string, args ...any) ([]models.RunRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		var (
			run      models.RunRecord
			resumeAt sql.NullTime
		)
		err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Considered, &run.Skipped,
			&run.Uploaded, &run.Failed, &run.StopReason, &resumeAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if resumeAt.Valid {
			t := resumeAt.Time
			run.ResumeAt = &t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}
