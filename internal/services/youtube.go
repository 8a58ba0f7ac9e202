// YouTube Data API v3 playlist backend
//
// Authorizes with the same client secrets and token cache the uploader binary uses,
// so a token refreshed here is immediately visible to the next uploader run.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vodsync/internal/models"
	"github.com/desertthunder/vodsync/internal/shared"
	"github.com/desertthunder/vodsync/internal/store"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const playlistPageSize = 50

// YouTubePlaylists finds and creates playlists through the Data API.
type YouTubePlaylists struct {
	service *youtube.Service
	logger  *log.Logger
}

// NewYouTubePlaylists authorizes with the client secrets and token cache of opts.
func NewYouTubePlaylists(ctx context.Context, opts UploaderOptions, logger *log.Logger) (*YouTubePlaylists, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	config, err := LoadOAuthConfig(opts.ClientSecrets)
	if err != nil {
		return nil, err
	}
	ts, err := newCachingTokenSource(ctx, config, opts.TokenCache, logger)
	if err != nil {
		return nil, err
	}
	return NewYouTubePlaylistsWithOptions(ctx, logger, option.WithTokenSource(ts))
}

// NewYouTubePlaylistsWithOptions builds the client from explicit [option.ClientOption] values.
func NewYouTubePlaylistsWithOptions(ctx context.Context, logger *log.Logger, opts ...option.ClientOption) (*YouTubePlaylists, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create youtube service: %v", shared.ErrAPIRequest, err)
	}
	return &YouTubePlaylists{service: svc, logger: logger}, nil
}

// FindPlaylist pages through the caller's playlists looking for an exact title match.
func (y *YouTubePlaylists) FindPlaylist(ctx context.Context, title string) (string, bool, error) {
	call := y.service.Playlists.List([]string{"snippet"}).Mine(true).MaxResults(playlistPageSize)

	pageToken := ""
	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return "", false, classifyAPIError(err)
		}

		for _, item := range resp.Items {
			if item.Snippet != nil && item.Snippet.Title == title {
				return item.Id, true, nil
			}
		}

		if resp.NextPageToken == "" {
			return "", false, nil
		}
		pageToken = resp.NextPageToken
	}
}

// CreatePlaylist inserts a playlist with the given title, description and privacy status.
func (y *YouTubePlaylists) CreatePlaylist(ctx context.Context, title, description string, visibility models.Visibility) (string, error) {
	playlist := &youtube.Playlist{
		Snippet: &youtube.PlaylistSnippet{Title: title, Description: description},
		Status:  &youtube.PlaylistStatus{PrivacyStatus: visibility.String()},
	}

	created, err := y.service.Playlists.Insert([]string{"snippet", "status"}, playlist).Context(ctx).Do()
	if err != nil {
		return "", classifyAPIError(err)
	}
	if created.Id == "" {
		return "", fmt.Errorf("%w: playlist insert returned no id", shared.ErrAPIRequest)
	}
	return created.Id, nil
}

// classifyAPIError maps Data API and token errors onto the quota and auth sentinels.
func classifyAPIError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %v", shared.ErrAuthExpired, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 401 {
			return fmt.Errorf("%w: %v", shared.ErrAuthExpired, err)
		}
		for _, item := range apiErr.Errors {
			switch item.Reason {
			case "quotaExceeded", "dailyLimitExceeded", "uploadLimitExceeded":
				return fmt.Errorf("%w: %v", shared.ErrQuotaExceeded, err)
			}
		}
		if strings.Contains(apiErr.Message, "quota") {
			return fmt.Errorf("%w: %v", shared.ErrQuotaExceeded, err)
		}
	}
	return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
}

// LoadOAuthConfig reads a Google client secrets file.
func LoadOAuthConfig(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: client secrets %s: %v", shared.ErrMissingConfig, path, err)
	}
	config, err := google.ConfigFromJSON(data, youtube.YoutubeScope, youtube.YoutubeUploadScope)
	if err != nil {
		return nil, fmt.Errorf("%w: client secrets %s: %v", shared.ErrInvalidConfig, path, err)
	}
	return config, nil
}

// LoadToken reads the uploader's token cache.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: token cache %s: %v", shared.ErrNotAuthenticated, path, err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: token cache %s: %v", shared.ErrNotAuthenticated, path, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token cache %s holds no token", shared.ErrNotAuthenticated, path)
	}
	return &token, nil
}

// cachingTokenSource writes refreshed tokens back to the token cache and picks up
// tokens renewed out of band whenever the cache file changes on disk.
type cachingTokenSource struct {
	mu     sync.Mutex
	ctx    context.Context
	config *oauth2.Config
	base   oauth2.TokenSource
	path   string
	last   string
	mod    time.Time
	logger *log.Logger
}

func newCachingTokenSource(ctx context.Context, config *oauth2.Config, path string, logger *log.Logger) (*cachingTokenSource, error) {
	token, err := LoadToken(path)
	if err != nil {
		return nil, err
	}
	ts := &cachingTokenSource{
		ctx:    ctx,
		config: config,
		base:   config.TokenSource(ctx, token),
		path:   path,
		last:   token.AccessToken,
		logger: logger,
	}
	if info, err := os.Stat(path); err == nil {
		ts.mod = info.ModTime()
	}
	return ts, nil
}

func (c *cachingTokenSource) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reload()
	token, err := c.base.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken != c.last {
		if err := saveToken(c.path, token); err != nil {
			c.logger.Warn("refreshed token not written to cache", "file", c.path, "error", err)
		} else {
			c.logger.Debug("token cache refreshed", "file", c.path, "expiry", token.Expiry)
			if info, err := os.Stat(c.path); err == nil {
				c.mod = info.ModTime()
			}
		}
		c.last = token.AccessToken
	}
	return token, nil
}

// reload rebuilds the base source from the cache file when its modification time moved.
func (c *cachingTokenSource) reload() {
	if c.config == nil {
		return
	}
	info, err := os.Stat(c.path)
	if err != nil || info.ModTime().Equal(c.mod) {
		return
	}
	token, err := LoadToken(c.path)
	if err != nil {
		c.logger.Warn("token cache changed but could not be read", "file", c.path, "error", err)
		return
	}
	c.base = c.config.TokenSource(c.ctx, token)
	c.last = token.AccessToken
	c.mod = info.ModTime()
	c.logger.Info("token cache reloaded", "file", c.path)
}

func saveToken(path string, token *oauth2.Token) error {
	w, err := store.NewAtomicWriter(path)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(token); err != nil {
		w.Abort()
		return err
	}
	return w.Commit()
}
