package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vodsync/internal/metadata"
	"github.com/desertthunder/vodsync/internal/shared"
)

type quotaState struct {
	ResumeAt *time.Time `json:"resume_at"`
}

// QuotaGate holds the persisted quota cooldown. It is advisory: callers check
// [QuotaGate.Blocked] before issuing remote calls.
type QuotaGate struct {
	mu       sync.Mutex
	path     string
	resumeAt *time.Time
	logger   *log.Logger
}

// OpenQuotaGate loads the cooldown at path. The file holds {"resume_at": <RFC3339>|null};
// a bare JSON timestamp string is accepted too.
func OpenQuotaGate(path string, logger *log.Logger) (*QuotaGate, error) {
	g := &QuotaGate{path: path, logger: orDefault(logger)}

	data, err := readState(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return g, nil
	}

	var state quotaState
	if err := json.Unmarshal(data, &state); err == nil {
		g.resumeAt = state.ResumeAt
		return g, nil
	}

	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		if t, ok := metadata.ParseTimestamp(bare); ok {
			g.resumeAt = &t
			return g, nil
		}
	}

	quarantine(path, time.Now(), fmt.Errorf("%w: unrecognized quota state", shared.ErrStateCorrupt), g.logger)
	return g, nil
}

// Blocked reports whether now is before the stored resume time, and that time.
func (g *QuotaGate) Blocked(now time.Time) (bool, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resumeAt == nil {
		return false, time.Time{}
	}
	return now.Before(*g.resumeAt), *g.resumeAt
}

// Trip records a cooldown of d starting at now and persists it.
//
// The in-memory state is updated even when the write fails, so the current run still honors it.
func (g *QuotaGate) Trip(now time.Time, d time.Duration) (time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	resume := now.Add(d).UTC()
	g.resumeAt = &resume
	return resume, writeJSON(g.path, quotaState{ResumeAt: &resume})
}

// Clear removes the cooldown and its file.
func (g *QuotaGate) Clear() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resumeAt = nil
	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StateError{Op: "clear", File: g.path, Err: err}
	}
	return nil
}

// ResumeAt returns the stored resume time, or nil when none is set.
func (g *QuotaGate) ResumeAt() *time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resumeAt == nil {
		return nil
	}
	t := *g.resumeAt
	return &t
}
