// Package store persists the engine's durable state as small JSON files:
// the upload ledger, the owner → playlist directory and the quota cooldown.
//
// Every write goes through [AtomicWriter] so a crash never leaves a partially
// written file behind. Absent files load as empty state. Corrupt files load as
// empty state too, after being moved aside so the next write cannot destroy them.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vodsync/internal/shared"
)

// StateError describes a failed operation on a state file.
type StateError struct {
	Op   string
	File string
	Err  error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// AtomicWriter writes to a temporary file in the target directory and renames it over the target on Commit.
type AtomicWriter struct {
	path    string
	tmpPath string
	file    *os.File
}

// NewAtomicWriter creates the temporary file next to path.
func NewAtomicWriter(path string) (*AtomicWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".vodsync-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &AtomicWriter{path: path, tmpPath: tmp.Name(), file: tmp}, nil
}

func (w *AtomicWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

// Commit syncs the temporary file and renames it over the target.
func (w *AtomicWriter) Commit() error {
	if err := w.file.Sync(); err != nil {
		w.Abort()
		return fmt.Errorf("sync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Abort discards the temporary file.
func (w *AtomicWriter) Abort() error {
	w.file.Close()
	return os.Remove(w.tmpPath)
}

// writeJSON atomically replaces path with the indented encoding of v.
func writeJSON(path string, v any) error {
	w, err := NewAtomicWriter(path)
	if err != nil {
		return &StateError{Op: "write", File: path, Err: fmt.Errorf("%w: %w", shared.ErrStateWrite, err)}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		w.Abort()
		return &StateError{Op: "write", File: path, Err: fmt.Errorf("%w: %w", shared.ErrStateWrite, err)}
	}
	if err := w.Commit(); err != nil {
		return &StateError{Op: "write", File: path, Err: fmt.Errorf("%w: %w", shared.ErrStateWrite, err)}
	}
	return nil
}

// readState returns the file contents, or nil when the file does not exist.
func readState(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &StateError{Op: "read", File: path, Err: err}
	}
	return data, nil
}

// quarantine moves a corrupt state file to "<path>.corrupt-<unix>".
func quarantine(path string, now time.Time, cause error, logger *log.Logger) {
	dest := fmt.Sprintf("%s.corrupt-%d", path, now.Unix())
	if err := os.Rename(path, dest); err != nil {
		logger.Error("could not move corrupt state file aside", "file", path, "error", err)
		return
	}
	logger.Warn("corrupt state file moved aside, starting empty", "file", path, "moved_to", dest, "cause", cause)
}

func orDefault(logger *log.Logger) *log.Logger {
	if logger == nil {
		return shared.NewLogger(nil)
	}
	return logger
}
