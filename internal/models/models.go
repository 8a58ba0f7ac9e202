// package models defines the data model for the VOD upload service
package models

import (
	"fmt"
	"strings"
	"time"
)

// Candidate is one discovered VOD: a media file plus its metadata sidecar.
//
// ID is the natural key. Two candidates with the same ID are the same logical VOD.
type Candidate struct {
	ID          string
	Owner       string
	MediaPath   string
	SidecarPath string
	StartedAt   *time.Time     // parsed sidecar "started_at", nil when absent or malformed
	Sidecar     map[string]any // raw sidecar fields
}

// SidecarString returns the sidecar field key as a trimmed string.
//
// Numbers are formatted without exponent so numeric ids survive the JSON round trip.
func (c Candidate) SidecarString(key string) string {
	v, ok := c.Sidecar[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", val))
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// Visibility is the privacy status of an uploaded video or playlist.
type Visibility string

const (
	Private  Visibility = "private"
	Unlisted Visibility = "unlisted"
	Public   Visibility = "public"
)

// ParseVisibility validates s as a [Visibility].
func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(strings.ToLower(strings.TrimSpace(s))); v {
	case Private, Unlisted, Public:
		return v, nil
	default:
		return "", fmt.Errorf("unknown visibility %q", s)
	}
}

func (v Visibility) String() string { return string(v) }

// UploadMetadata is the metadata sent with one upload attempt.
type UploadMetadata struct {
	Title         string
	Description   string
	Tags          []string
	Language      string
	RecordingDate *time.Time // omitted entirely when nil
	ThumbnailURL  string
	Visibility    Visibility
	PlaylistID    string
}

// RecordingDateString formats RecordingDate as YYYY-MM-DD, or "" when absent.
func (m UploadMetadata) RecordingDateString() string {
	if m.RecordingDate == nil {
		return ""
	}
	return m.RecordingDate.UTC().Format(time.DateOnly)
}

// Outcome classifies the result of a single uploader invocation.
type Outcome int

const (
	Success Outcome = iota
	QuotaExceeded
	AuthExpired
	ValidationRejected
	OtherFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case QuotaExceeded:
		return "quota_exceeded"
	case AuthExpired:
		return "auth_expired"
	case ValidationRejected:
		return "validation_rejected"
	case OtherFailure:
		return "other_failure"
	default:
		return ""
	}
}

// AttemptState is a node of the per-candidate upload state machine.
type AttemptState int

const (
	Pending AttemptState = iota
	PlaylistResolving
	MetadataBuilt
	Uploading
	DegradedRetry
	Succeeded
	Failed
)

func (s AttemptState) String() string {
	switch s {
	case Pending:
		return "pending"
	case PlaylistResolving:
		return "playlist_resolving"
	case MetadataBuilt:
		return "metadata_built"
	case Uploading:
		return "uploading"
	case DegradedRetry:
		return "degraded_retry"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// Terminal reports whether no further transitions follow s.
func (s AttemptState) Terminal() bool {
	return s == Succeeded || s == Failed
}

// AttemptRecord is one uploader invocation as stored in the journal.
type AttemptRecord struct {
	ID         string
	Sequence   int
	RunID      string
	VodID      string
	Owner      string
	Attempt    int
	Degraded   bool
	Outcome    Outcome
	ExitCode   int
	Diagnostic string
	Title      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Validate checks the fields the journal requires.
func (r *AttemptRecord) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if r.VodID == "" {
		return fmt.Errorf("vod id is required")
	}
	if r.Attempt < 1 {
		return fmt.Errorf("attempt number must be positive")
	}
	return nil
}

// RunRecord summarizes one orchestration run as stored in the journal.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Considered int
	Skipped    int
	Uploaded   int
	Failed     int
	StopReason string
	ResumeAt   *time.Time
}

// ParseOutcome is the inverse of [Outcome.String].
func ParseOutcome(s string) (Outcome, error) {
	for o := Success; o <= OtherFailure; o++ {
		if o.String() == s {
			return o, nil
		}
	}
	return OtherFailure, fmt.Errorf("unknown outcome %q", s)
}
