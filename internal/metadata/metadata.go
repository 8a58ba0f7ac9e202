// Package metadata turns a scanned [models.Candidate] into the [models.UploadMetadata] sent to the uploader.
//
// Every function here is pure. Title derivation falls back from the sidecar title to the
// media file name to a literal "VOD {id}", prefixes a YYMMDD date tag, strips characters
// the platform rejects and truncates at a word boundary.
package metadata

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/desertthunder/vodsync/internal/models"
)

// MaxTitleLength is the platform's title limit, counted in runes.
const MaxTitleLength = 100

// illegalTitleRunes are rejected by the platform's title field.
const illegalTitleRunes = `"'“”‘’/\:*?<>|`

// Options carries the configured defaults that are not part of the sidecar.
type Options struct {
	Visibility      models.Visibility
	Language        string
	FixedTag        string
	ThumbnailWidth  int
	ThumbnailHeight int
}

// DefaultOptions mirrors the defaults of the example configuration.
func DefaultOptions() Options {
	return Options{
		Visibility:      models.Unlisted,
		Language:        "en",
		FixedTag:        "Twitch VOD",
		ThumbnailWidth:  1280,
		ThumbnailHeight: 720,
	}
}

// Build synthesizes the metadata for the first upload attempt of c.
func Build(c models.Candidate, playlistID string, opts Options) models.UploadMetadata {
	meta := models.UploadMetadata{
		Title:        Title(c, true),
		Description:  Description(c),
		Tags:         Tags(c, opts.FixedTag),
		Language:     c.SidecarString("language"),
		ThumbnailURL: Thumbnail(c.SidecarString("thumbnail_url"), opts.ThumbnailWidth, opts.ThumbnailHeight),
		Visibility:   opts.Visibility,
		PlaylistID:   playlistID,
	}
	if meta.Language == "" {
		meta.Language = opts.Language
	}
	if meta.Language == "" {
		meta.Language = "en"
	}
	if meta.Visibility == "" {
		meta.Visibility = models.Unlisted
	}
	if t, ok := startedAt(c); ok {
		date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		meta.RecordingDate = &date
	}
	return meta
}

// Degrade returns prev with the fields most often rejected by the platform removed:
// the recording date is dropped and the title is rebuilt from the file name.
func Degrade(c models.Candidate, prev models.UploadMetadata) models.UploadMetadata {
	next := prev
	next.Tags = append([]string(nil), prev.Tags...)
	next.RecordingDate = nil
	next.Title = Title(c, false)
	return next
}

// Title derives the cleaned, date-tagged title of c.
//
// With useSidecar false the sidecar title is ignored and the file name is the first source.
func Title(c models.Candidate, useSidecar bool) string {
	sources := make([]string, 0, 3)
	if useSidecar {
		sources = append(sources, c.SidecarString("title"))
	}
	sources = append(sources, FilenameTitle(c.MediaPath), "VOD "+c.ID)

	tag := DateTag(c)
	for _, src := range sources {
		if CleanTitle(src) == "" {
			continue
		}
		combined := src
		if tag != "" {
			combined = tag + " " + src
		}
		return TruncateWords(CleanTitle(combined), MaxTitleLength)
	}
	return TruncateWords(CleanTitle(tag+" VOD"), MaxTitleLength)
}

// DateTag is the YYMMDD prefix taken from the sidecar timestamp, else from a leading file name date.
func DateTag(c models.Candidate) string {
	if t, ok := startedAt(c); ok {
		return t.Format("060102")
	}
	if t, ok := FilenameDate(c.MediaPath); ok {
		return t.Format("060102")
	}
	if t, ok := FilenameDate(c.SidecarPath); ok {
		return t.Format("060102")
	}
	return ""
}

// CleanTitle strips characters illegal in platform titles and decorative glyphs,
// turns underscores into spaces and collapses whitespace.
func CleanTitle(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case strings.ContainsRune(illegalTitleRunes, r):
		case r == '_':
			b.WriteRune(' ')
		case isDecorative(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isDecorative(r rune) bool {
	if r < unicode.MaxASCII {
		return unicode.IsControl(r)
	}
	return unicode.In(r, unicode.So, unicode.Sk, unicode.Co, unicode.Cf, unicode.Variation_Selector) || unicode.IsControl(r)
}

// TruncateWords shortens s to at most max runes without splitting a word.
//
// A single word longer than max is cut at max.
func TruncateWords(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	for i := max; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return strings.TrimRightFunc(string(runes[:i]), unicode.IsSpace)
		}
	}
	return string(runes[:max])
}

// Description renders the fixed description template.
func Description(c models.Candidate) string {
	broadcaster := c.SidecarString("user_name")
	if broadcaster == "" {
		broadcaster = c.Owner
	}
	category := c.SidecarString("game_name")
	if category == "" {
		category = "Unknown"
	}
	broadcast := c.SidecarString("started_at")
	if broadcast == "" {
		broadcast = "unknown"
	}

	desc := fmt.Sprintf("Streamed by %s\nGame: %s\nOriginal broadcast: %s\nVOD ID: %s\n",
		broadcaster, category, broadcast, c.ID)
	return strings.NewReplacer("<", "", ">", "").Replace(desc)
}

// Tags returns exactly three tags: owner, the fixed tag and the category (possibly empty).
func Tags(c models.Candidate, fixedTag string) []string {
	return []string{c.Owner, fixedTag, c.SidecarString("game_name")}
}

// Thumbnail fills the "{width}" and "{height}" placeholders of a thumbnail template.
func Thumbnail(template string, width, height int) string {
	if template == "" {
		return ""
	}
	return strings.NewReplacer(
		"{width}", strconv.Itoa(width),
		"%{width}", strconv.Itoa(width),
		"{height}", strconv.Itoa(height),
		"%{height}", strconv.Itoa(height),
	).Replace(template)
}

func startedAt(c models.Candidate) (time.Time, bool) {
	if c.StartedAt != nil {
		return c.StartedAt.UTC(), true
	}
	return ParseTimestamp(c.SidecarString("started_at"))
}
