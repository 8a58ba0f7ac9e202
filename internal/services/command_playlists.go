package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vodsync/internal/models"
	"github.com/desertthunder/vodsync/internal/shared"
)

const playlistIDMarker = "playlist ID:"

// CommandPlaylists creates playlists by running the uploader binary with a
// playlist-only metadata document and no media ("-filename -").
//
// The binary cannot list playlists, so FindPlaylist never finds one.
type CommandPlaylists struct {
	opts       UploaderOptions
	classifier Classifier
	logger     *log.Logger
}

func NewCommandPlaylists(opts UploaderOptions, classifier Classifier, logger *log.Logger) *CommandPlaylists {
	if classifier == nil {
		classifier = NewSubstringClassifier(Patterns{})
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &CommandPlaylists{opts: opts, classifier: classifier, logger: logger}
}

func (p *CommandPlaylists) FindPlaylist(context.Context, string) (string, bool, error) {
	return "", false, nil
}

type playlistMeta struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	PrivacyStatus  string   `json:"privacyStatus"`
	PlaylistTitles []string `json:"playlistTitles"`
}

func (p *CommandPlaylists) CreatePlaylist(ctx context.Context, title, description string, visibility models.Visibility) (string, error) {
	metaPath, cleanup, err := writeMetaFile(p.opts.WorkDir, playlistMeta{
		Title:          title,
		Description:    description,
		PrivacyStatus:  visibility.String(),
		PlaylistTitles: []string{title},
	})
	if err != nil {
		return "", err
	}
	defer cleanup()

	args := []string{
		"-secrets", p.opts.ClientSecrets,
		"-cache", p.opts.TokenCache,
		"-metaJSON", metaPath,
		"-filename", "-",
		"-quiet",
	}
	res, err := runUploader(ctx, p.opts.Bin, args)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", outcomeError(p.classifier.Classify(res.ExitCode, res.Diagnostic), res.Diagnostic)
	}

	if id := parsePlaylistID(res.Diagnostic); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: no playlist id in uploader output", shared.ErrAPIRequest)
}

// parsePlaylistID returns the id from the last "playlist ID:" line.
func parsePlaylistID(output string) string {
	var id string
	for line := range strings.SplitSeq(output, "\n") {
		if _, after, ok := strings.Cut(line, playlistIDMarker); ok {
			if v := strings.TrimSpace(after); v != "" {
				id = v
			}
		}
	}
	return id
}

// outcomeError converts a failed outcome into the matching sentinel error.
func outcomeError(o models.Outcome, diagnostic string) error {
	diag := shared.Truncate(diagnostic, 300)
	switch o {
	case models.QuotaExceeded:
		return fmt.Errorf("%w: %s", shared.ErrQuotaExceeded, diag)
	case models.AuthExpired:
		return fmt.Errorf("%w: %s", shared.ErrAuthExpired, diag)
	case models.ValidationRejected:
		return fmt.Errorf("%w: %s", shared.ErrValidationRejected, diag)
	default:
		return fmt.Errorf("%w: %s", shared.ErrAPIRequest, diag)
	}
}
