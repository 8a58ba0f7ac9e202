//go:build windows

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/vodsync/internal/shared"
)

// RunLock falls back to an exclusively created marker file on Windows.
type RunLock struct {
	path string
	file *os.File
}

func NewRunLock(path string) *RunLock {
	return &RunLock{path: path}
}

func (l *RunLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return &StateError{Op: "lock", File: l.path, Err: err}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", shared.ErrRunLocked, l.path)
	}
	if err != nil {
		return &StateError{Op: "lock", File: l.path, Err: err}
	}
	fmt.Fprintf(f, "pid=%d\n", os.Getpid())
	l.file = f
	return nil
}

func (l *RunLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	l.file.Close()
	l.file = nil
	return os.Remove(l.path)
}
