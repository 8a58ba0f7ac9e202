package services

import (
	"strings"

	"github.com/desertthunder/vodsync/internal/models"
)

// Classifier maps the result of an uploader invocation to an [models.Outcome].
type Classifier interface {
	Classify(exitCode int, diagnostic string) models.Outcome
}

// Patterns groups the case-insensitive substrings that identify each failure class.
type Patterns struct {
	Quota      []string
	Auth       []string
	Validation []string
}

// DefaultPatterns matches the messages youtubeuploader and the Data API emit.
//
// Status codes only match with context, since diagnostics echo file names and ids.
// Short-term rate limits are ordinary failures, not quota.
func DefaultPatterns() Patterns {
	return Patterns{
		Quota: []string{
			"quotaExceeded",
			"exceeded your quota",
			"uploadLimitExceeded",
			"dailyLimitExceeded",
		},
		Auth: []string{
			"invalid_grant",
			"Token has been expired or revoked",
			"unauthorized_client",
			"invalid_client",
			"Invalid Credentials",
			"oauth2: cannot fetch token",
			"Error 401",
			"401 Unauthorized",
		},
		Validation: []string{
			"invalidRecordingDetails",
			"invalidTitle",
			"invalidDescription",
			"invalidTags",
			"invalidVideoMetadata",
			"parsing time",
			"recordingDate",
			"invalid metadata",
		},
	}
}

// SubstringClassifier checks the diagnostic text against [Patterns] in priority
// order: quota, then auth, then validation. Exit code zero is always success.
type SubstringClassifier struct {
	patterns Patterns
}

// NewSubstringClassifier creates a classifier. Empty pattern groups fall back to [DefaultPatterns].
func NewSubstringClassifier(p Patterns) *SubstringClassifier {
	def := DefaultPatterns()
	if len(p.Quota) == 0 {
		p.Quota = def.Quota
	}
	if len(p.Auth) == 0 {
		p.Auth = def.Auth
	}
	if len(p.Validation) == 0 {
		p.Validation = def.Validation
	}
	return &SubstringClassifier{patterns: p}
}

func (c *SubstringClassifier) Classify(exitCode int, diagnostic string) models.Outcome {
	if exitCode == 0 {
		return models.Success
	}

	text := strings.ToLower(diagnostic)
	switch {
	case containsAny(text, c.patterns.Quota):
		return models.QuotaExceeded
	case containsAny(text, c.patterns.Auth):
		return models.AuthExpired
	case containsAny(text, c.patterns.Validation):
		return models.ValidationRejected
	default:
		return models.OtherFailure
	}
}

func containsAny(lowered string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(lowered, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
