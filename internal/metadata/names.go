package metadata

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	// idPattern matches a bracket-delimited identifier such as "[1234567890]".
	idPattern = regexp.MustCompile(`\[([^\[\]]+)\]`)
	// datePattern matches a leading YYYY-MM-DD token.
	datePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.DateTime,
}

// ExtractID returns the last bracketed token of a file name.
func ExtractID(name string) (string, bool) {
	matches := idPattern.FindAllStringSubmatch(filepath.Base(name), -1)
	if len(matches) == 0 {
		return "", false
	}
	id := strings.TrimSpace(matches[len(matches)-1][1])
	return id, id != ""
}

// FilenameDate parses a leading YYYY-MM-DD token of a file name.
func FilenameDate(name string) (time.Time, bool) {
	m := datePattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseTimestamp parses a sidecar timestamp. Anything unparseable is reported as absent.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// MediaStem is the media file name without extension or the "-video" suffix.
func MediaStem(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(stem, "-video")
}

// FilenameTitle is the part of the media file name between the leading date
// token and the trailing bracketed identifier.
func FilenameTitle(path string) string {
	stem := MediaStem(path)
	stem = datePattern.ReplaceAllString(stem, "")
	if idx := strings.LastIndex(stem, "["); idx >= 0 {
		stem = stem[:idx]
	}
	return strings.Trim(stem, " -_.")
}
