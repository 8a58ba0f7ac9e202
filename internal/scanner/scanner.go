// Package scanner discovers VOD candidates on disk.
//
// The layout is root/<owner>/ with sessions either in subdirectories of the
// owner directory or as flat files inside it. A session is a JSON sidecar paired
// with a media file:
//
//	<stem>-info.json  ↔  <stem>-video.mp4
//	<stem>.json       ↔  <stem>.mp4 | <stem>.mkv
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vodsync/internal/metadata"
	"github.com/desertthunder/vodsync/internal/models"
	"github.com/desertthunder/vodsync/internal/shared"
)

const infoSuffix = "-info.json"

var plainMediaExts = []string{".mp4", ".mkv"}

// Scanner walks a recordings root.
type Scanner struct {
	root   string
	logger *log.Logger
}

// New creates a scanner for root.
func New(root string, logger *log.Logger) *Scanner {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Scanner{root: root, logger: logger}
}

// Root returns the directory being scanned.
func (s *Scanner) Root() string { return s.root }

// Scan returns every candidate under the root ordered by owner, then broadcast
// time, then ID. Candidates with an unknown broadcast time sort last within their owner.
//
// Only an unreadable root is an error; unreadable owner or session directories are skipped.
func (s *Scanner) Scan(ctx context.Context) ([]models.Candidate, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read root %s: %v", shared.ErrInvalidInput, s.root, err)
	}

	var found []entry
	seen := make(map[string]string)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		owner := e.Name()
		for _, c := range s.scanOwner(filepath.Join(s.root, owner), owner) {
			if prev, dup := seen[c.ID]; dup {
				s.logger.Warn("duplicate vod id, keeping first", "vod_id", c.ID, "kept", prev, "dropped", c.MediaPath)
				continue
			}
			seen[c.ID] = c.MediaPath
			found = append(found, entry{Candidate: c, when: broadcastTime(c)})
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].less(found[j]) })

	candidates := make([]models.Candidate, len(found))
	for i, f := range found {
		candidates[i] = f.Candidate
	}
	return candidates, nil
}

func (s *Scanner) scanOwner(dir, owner string) []models.Candidate {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Warn("skipping unreadable owner directory", "owner", owner, "error", err)
		return nil
	}

	candidates := s.scanSession(dir, owner, entries)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		session := filepath.Join(dir, e.Name())
		sessionEntries, err := os.ReadDir(session)
		if err != nil {
			s.logger.Warn("skipping unreadable session directory", "owner", owner, "path", session, "error", err)
			continue
		}
		candidates = append(candidates, s.scanSession(session, owner, sessionEntries)...)
	}
	return candidates
}

func (s *Scanner) scanSession(dir, owner string, entries []os.DirEntry) []models.Candidate {
	files := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files[e.Name()] = true
		}
	}

	var candidates []models.Candidate
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".json") {
			continue
		}

		media, ok := pairMedia(name, files)
		if !ok {
			s.logger.Debug("sidecar without media file", "path", filepath.Join(dir, name))
			continue
		}

		id, ok := metadata.ExtractID(name)
		if !ok {
			id, ok = metadata.ExtractID(media)
		}
		if !ok {
			s.logger.Warn("skipping session without identifier", "path", filepath.Join(dir, media))
			continue
		}

		c := models.Candidate{
			ID:          id,
			Owner:       owner,
			MediaPath:   filepath.Join(dir, media),
			SidecarPath: filepath.Join(dir, name),
			Sidecar:     s.readSidecar(filepath.Join(dir, name)),
		}
		if t, ok := metadata.ParseTimestamp(c.SidecarString("started_at")); ok {
			c.StartedAt = &t
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// pairMedia finds the media file belonging to a sidecar.
func pairMedia(sidecar string, files map[string]bool) (string, bool) {
	if stem, ok := strings.CutSuffix(sidecar, infoSuffix); ok {
		media := stem + "-video.mp4"
		return media, files[media]
	}

	stem := strings.TrimSuffix(sidecar, filepath.Ext(sidecar))
	for _, ext := range plainMediaExts {
		if files[stem+ext] {
			return stem + ext, true
		}
	}
	return "", false
}

func (s *Scanner) readSidecar(path string) map[string]any {
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("unreadable sidecar, using filename fallbacks", "path", path, "error", err)
		return map[string]any{}
	}

	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		s.logger.Warn("corrupt sidecar, using filename fallbacks", "path", path, "error", err)
		return map[string]any{}
	}
	return fields
}

type entry struct {
	models.Candidate
	when *time.Time
}

func (a entry) less(b entry) bool {
	if a.Owner != b.Owner {
		return a.Owner < b.Owner
	}
	switch {
	case a.when != nil && b.when == nil:
		return true
	case a.when == nil && b.when != nil:
		return false
	case a.when != nil && b.when != nil && !a.when.Equal(*b.when):
		return a.when.Before(*b.when)
	}
	return a.ID < b.ID
}

// broadcastTime is the sidecar timestamp, else the leading filename date.
func broadcastTime(c models.Candidate) *time.Time {
	if c.StartedAt != nil {
		return c.StartedAt
	}
	if t, ok := metadata.FilenameDate(c.MediaPath); ok {
		return &t
	}
	if t, ok := metadata.FilenameDate(c.SidecarPath); ok {
		return &t
	}
	return nil
}
