package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/vodsync/internal/models"
)

// JournalAdapter implements tasks.Journal on top of the attempt and run repositories.
type JournalAdapter struct {
	attempts *AttemptRepository
	runs     *RunRepository
}

// NewJournalAdapter creates a new JournalAdapter backed by db.
func NewJournalAdapter(db *sql.DB) *JournalAdapter {
	return &JournalAdapter{attempts: NewAttemptRepository(db), runs: NewRunRepository(db)}
}

// RecordAttempt stores one uploader invocation.
func (a *JournalAdapter) RecordAttempt(rec models.AttemptRecord) error {
	if err := a.attempts.Create(&rec); err != nil {
		return fmt.Errorf("failed to journal attempt for %s: %w", rec.VodID, err)
	}
	return nil
}

// RecordRun stores the summary of a finished run.
func (a *JournalAdapter) RecordRun(rec models.RunRecord) error {
	if err := a.runs.Create(&rec); err != nil {
		return fmt.Errorf("failed to journal run %s: %w", rec.ID, err)
	}
	return nil
}

func (a *JournalAdapter) Attempts() *AttemptRepository { return a.attempts }

func (a *JournalAdapter) Runs() *RunRepository { return a.runs }
