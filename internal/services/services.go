package services

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vodsync/internal/shared"
	"github.com/desertthunder/vodsync/internal/store"
)

// NewClassifier builds a [SubstringClassifier] from the [classifier] config section.
func NewClassifier(cfg shared.ClassifierConfig) *SubstringClassifier {
	return NewSubstringClassifier(Patterns{Quota: cfg.Quota, Auth: cfg.Auth, Validation: cfg.Validation})
}

// NewPlaylistService selects the playlist backend named by playlists.mode.
func NewPlaylistService(ctx context.Context, cfg *shared.Config, classifier Classifier, logger *log.Logger) (store.PlaylistService, error) {
	opts := UploaderOptionsFromConfig(cfg.Uploader)
	switch cfg.Playlists.Mode {
	case shared.PlaylistModeUploader:
		return NewCommandPlaylists(opts, classifier, logger), nil
	case shared.PlaylistModeAPI, "":
		return NewYouTubePlaylists(ctx, opts, logger)
	default:
		return nil, fmt.Errorf("%w: playlists.mode %q", shared.ErrInvalidConfig, cfg.Playlists.Mode)
	}
}
