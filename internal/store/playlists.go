package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vodsync/internal/models"
	"github.com/desertthunder/vodsync/internal/shared"
)

// PlaylistService is the remote side of playlist resolution.
type PlaylistService interface {
	// FindPlaylist looks up one of the caller's playlists by exact title.
	// Backends that cannot list playlists return ("", false, nil).
	FindPlaylist(ctx context.Context, title string) (id string, found bool, err error)
	CreatePlaylist(ctx context.Context, title, description string, visibility models.Visibility) (string, error)
}

// PlaylistDefaults configures playlists created on demand.
type PlaylistDefaults struct {
	Visibility models.Visibility
}

// PlaylistTitle is the title of the playlist collecting an owner's uploads.
func PlaylistTitle(owner string) string {
	return owner + " VODs"
}

// PlaylistDescription is the description given to created playlists.
func PlaylistDescription(owner string) string {
	return "Automatically created playlist for " + owner
}

// PlaylistDirectory caches the owner → playlist id mapping in front of a [PlaylistService].
//
// A mapping, once stored, is never overwritten.
type PlaylistDirectory struct {
	mu       sync.Mutex
	path     string
	entries  map[string]string
	service  PlaylistService
	defaults PlaylistDefaults
	logger   *log.Logger
}

// OpenPlaylistDirectory loads the directory at path with the same missing and corrupt
// file handling as [OpenLedger]. service may be nil for read-only use.
func OpenPlaylistDirectory(path string, service PlaylistService, defaults PlaylistDefaults, logger *log.Logger) (*PlaylistDirectory, error) {
	if defaults.Visibility == "" {
		defaults.Visibility = models.Unlisted
	}
	d := &PlaylistDirectory{
		path:     path,
		entries:  make(map[string]string),
		service:  service,
		defaults: defaults,
		logger:   orDefault(logger),
	}

	data, err := readState(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return d, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		if err == nil {
			err = fmt.Errorf("not an object")
		}
		quarantine(path, time.Now(), fmt.Errorf("%w: %v", shared.ErrStateCorrupt, err), d.logger)
		return d, nil
	}

	for owner, v := range raw {
		id, ok := v.(string)
		if !ok || strings.TrimSpace(id) == "" {
			d.logger.Warn("ignoring invalid playlist entry", "file", path, "owner", owner)
			continue
		}
		d.entries[owner] = strings.TrimSpace(id)
	}
	return d, nil
}

// Lookup returns the cached playlist id of owner.
func (d *PlaylistDirectory) Lookup(owner string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.entries[owner]
	return id, ok
}

// Entries returns a copy of the mapping.
func (d *PlaylistDirectory) Entries() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.entries)
}

// ResolveOrCreate returns the playlist id of owner, adopting or creating the playlist on a cache miss.
//
// Creation is never retried. Errors wrap [shared.ErrPlaylistCreate] together with the
// service error so quota and auth failures stay detectable with errors.Is.
func (d *PlaylistDirectory) ResolveOrCreate(ctx context.Context, owner string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.entries[owner]; ok {
		return id, nil
	}
	if d.service == nil {
		return "", fmt.Errorf("%w: no playlist service configured", shared.ErrPlaylistCreate)
	}

	title := PlaylistTitle(owner)
	logger := d.logger.With("owner", owner, "title", title)

	id, found, err := d.service.FindPlaylist(ctx, title)
	if err != nil {
		return "", fmt.Errorf("%w: find %q: %w", shared.ErrPlaylistCreate, title, err)
	}
	if found {
		logger.Info("adopted existing playlist", "playlist_id", id)
	} else {
		id, err = d.service.CreatePlaylist(ctx, title, PlaylistDescription(owner), d.defaults.Visibility)
		if err != nil {
			return "", fmt.Errorf("%w: create %q: %w", shared.ErrPlaylistCreate, title, err)
		}
		if strings.TrimSpace(id) == "" {
			return "", fmt.Errorf("%w: create %q returned no id", shared.ErrPlaylistCreate, title)
		}
		logger.Info("created playlist", "playlist_id", id)
	}

	d.entries[owner] = id
	if err := writeJSON(d.path, d.entries); err != nil {
		logger.Error("playlist mapping not persisted", "playlist_id", id, "error", err)
	}
	return id, nil
}
