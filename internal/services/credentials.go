package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vodsync/internal/shared"
	"github.com/fsnotify/fsnotify"
)

const defaultPollInterval = 30 * time.Second

// CredentialWatcher waits for the token cache to be renewed out of band.
type CredentialWatcher struct {
	path    string
	poll    time.Duration
	timeout time.Duration
	logger  *log.Logger
}

// NewCredentialWatcher watches path, polling every poll in addition to filesystem
// events. A zero timeout waits until the context ends.
func NewCredentialWatcher(path string, poll, timeout time.Duration, logger *log.Logger) *CredentialWatcher {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &CredentialWatcher{path: filepath.Clean(path), poll: poll, timeout: timeout, logger: logger}
}

type fileStamp struct {
	exists  bool
	size    int64
	modTime time.Time
}

func stamp(path string) fileStamp {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{exists: true, size: info.Size(), modTime: info.ModTime()}
}

func (s fileStamp) renewedSince(base fileStamp) bool {
	if !s.exists || s.size == 0 {
		return false
	}
	return !base.exists || s.size != base.size || !s.modTime.Equal(base.modTime)
}

// WaitForRenewal blocks until the token cache changes relative to its state at call time.
//
// Returns [shared.ErrReauthTimeout] when the timeout elapses first.
func (w *CredentialWatcher) WaitForRenewal(ctx context.Context) error {
	base := stamp(w.path)

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("filesystem watch unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(w.path)); err != nil {
			w.logger.Warn("cannot watch token directory, polling only", "dir", filepath.Dir(w.path), "error", err)
		} else {
			events, errs = watcher.Events, watcher.Errors
		}
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	w.logger.Info("waiting for renewed credentials", "token_cache", w.path)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if stamp(w.path).renewedSince(base) {
					w.logger.Info("token cache renewed", "token_cache", w.path)
					return nil
				}
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("watch error", "error", err)
		case <-ticker.C:
			if stamp(w.path).renewedSince(base) {
				w.logger.Info("token cache renewed", "token_cache", w.path)
				return nil
			}
		case <-ctx.Done():
			if w.timeout > 0 && ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("%w after %s", shared.ErrReauthTimeout, w.timeout)
			}
			return ctx.Err()
		}
	}
}
