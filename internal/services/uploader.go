// youtubeuploader subprocess driver
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vodsync/internal/models"
	"github.com/desertthunder/vodsync/internal/shared"
)

var videoIDPattern = regexp.MustCompile(`Video ID:\s*([A-Za-z0-9_-]+)`)

// Uploader submits one media file with its metadata.
type Uploader interface {
	// Upload runs a single attempt. A non-zero exit is reported through [UploadResult], not the error;
	// the error is reserved for local failures and context cancellation.
	Upload(ctx context.Context, mediaPath string, meta models.UploadMetadata) (UploadResult, error)
}

// UploadResult is the observable result of one uploader invocation.
type UploadResult struct {
	ExitCode   int
	Diagnostic string // combined stdout and stderr
	VideoID    string
}

// UploaderOptions locates the uploader binary and its credentials.
type UploaderOptions struct {
	Bin           string
	ClientSecrets string
	TokenCache    string
	WorkDir       string // temporary metadata files, empty for the system temp dir
	Quiet         bool
}

// UploaderOptionsFromConfig maps the [uploader] config section.
func UploaderOptionsFromConfig(c shared.UploaderConfig) UploaderOptions {
	return UploaderOptions{
		Bin:           c.Bin,
		ClientSecrets: c.ClientSecrets,
		TokenCache:    c.TokenCache,
		WorkDir:       c.WorkDir,
		Quiet:         c.Quiet,
	}
}

// videoMeta is the document passed through -metaJSON.
type videoMeta struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	PrivacyStatus string   `json:"privacyStatus"`
	Language      string   `json:"language,omitempty"`
	RecordingDate string   `json:"recordingDate,omitempty"`
	PlaylistIDs   []string `json:"playlistIds,omitempty"`
}

func newVideoMeta(m models.UploadMetadata) videoMeta {
	v := videoMeta{
		Title:         m.Title,
		Description:   m.Description,
		Tags:          m.Tags,
		PrivacyStatus: m.Visibility.String(),
		Language:      m.Language,
		RecordingDate: m.RecordingDateString(),
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
	if m.PlaylistID != "" {
		v.PlaylistIDs = []string{m.PlaylistID}
	}
	return v
}

// CommandUploader runs the youtubeuploader binary once per attempt.
type CommandUploader struct {
	opts   UploaderOptions
	logger *log.Logger
}

// NewCommandUploader creates an uploader driving opts.Bin.
func NewCommandUploader(opts UploaderOptions, logger *log.Logger) *CommandUploader {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &CommandUploader{opts: opts, logger: logger}
}

// Upload writes the metadata document to a temporary file and runs
//
//	bin -secrets S -cache C -filename F -metaJSON M -privacy P [-thumbnail U] [-quiet]
func (u *CommandUploader) Upload(ctx context.Context, mediaPath string, meta models.UploadMetadata) (UploadResult, error) {
	metaPath, cleanup, err := writeMetaFile(u.opts.WorkDir, newVideoMeta(meta))
	if err != nil {
		return UploadResult{ExitCode: -1, Diagnostic: err.Error()}, err
	}
	defer cleanup()

	args := []string{
		"-secrets", u.opts.ClientSecrets,
		"-cache", u.opts.TokenCache,
		"-filename", mediaPath,
		"-metaJSON", metaPath,
		"-privacy", meta.Visibility.String(),
	}
	if meta.ThumbnailURL != "" {
		args = append(args, "-thumbnail", meta.ThumbnailURL)
	}
	if u.opts.Quiet {
		args = append(args, "-quiet")
	}

	u.logger.Debug("running uploader", "bin", u.opts.Bin, "file", mediaPath, "title", meta.Title)
	res, err := runUploader(ctx, u.opts.Bin, args)
	if m := videoIDPattern.FindStringSubmatch(res.Diagnostic); m != nil {
		res.VideoID = m[1]
	}
	return res, err
}

// runUploader executes bin and captures its combined output.
func runUploader(ctx context.Context, bin string, args []string) (UploadResult, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	res := UploadResult{Diagnostic: strings.TrimSpace(out.String())}
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	res.ExitCode = -1
	if res.Diagnostic == "" {
		res.Diagnostic = err.Error()
	}
	return res, fmt.Errorf("%w: start %s: %v", shared.ErrUploadFailed, bin, err)
}

func writeMetaFile(dir string, v any) (string, func(), error) {
	f, err := os.CreateTemp(dir, "vodsync-meta-*.json")
	if err != nil {
		return "", nil, fmt.Errorf("%w: metadata file: %v", shared.ErrUploadFailed, err)
	}

	cleanup := func() { os.Remove(f.Name()) }
	if err := json.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("%w: metadata file: %v", shared.ErrUploadFailed, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("%w: metadata file: %v", shared.ErrUploadFailed, err)
	}
	return f.Name(), cleanup, nil
}
