//go:build !windows

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/desertthunder/vodsync/internal/shared"
)

// RunLock is an advisory flock(2) lock that keeps overlapping runs apart.
type RunLock struct {
	path string
	file *os.File
}

// NewRunLock creates a lock on path. Nothing is acquired until [RunLock.TryLock].
func NewRunLock(path string) *RunLock {
	return &RunLock{path: path}
}

// TryLock acquires the lock without waiting. A held lock returns [shared.ErrRunLocked].
func (l *RunLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return &StateError{Op: "lock", File: l.path, Err: err}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return &StateError{Op: "lock", File: l.path, Err: err}
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return fmt.Errorf("%w: %s", shared.ErrRunLocked, l.path)
		}
		return &StateError{Op: "lock", File: l.path, Err: err}
	}

	f.Truncate(0)
	fmt.Fprintf(f, "pid=%d started=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	l.file = f
	return nil
}

// Unlock releases the lock. It is safe to call on an unheld lock.
func (l *RunLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}
