package services

import (
	"testing"

	"github.com/desertthunder/vodsync/internal/models"
)

func TestSubstringClassifier(t *testing.T) {
	c := NewSubstringClassifier(Patterns{})

	tc := []struct {
		name       string
		exitCode   int
		diagnostic string
		want       models.Outcome
	}{
		{name: "zero exit is success", exitCode: 0, diagnostic: "quotaExceeded", want: models.Success},
		{name: "quota", exitCode: 1, diagnostic: `googleapi: Error 403: The request cannot be completed because you have exceeded your quota., quotaExceeded`, want: models.QuotaExceeded},
		{name: "upload limit", exitCode: 1, diagnostic: "uploadLimitExceeded", want: models.QuotaExceeded},
		{name: "auth", exitCode: 1, diagnostic: `oauth2: "invalid_grant" "Token has been expired or revoked."`, want: models.AuthExpired},
		{name: "auth case insensitive", exitCode: 1, diagnostic: "INVALID CREDENTIALS", want: models.AuthExpired},
		{name: "validation", exitCode: 1, diagnostic: `parsing time "2024-13-45" as "2006-01-02"`, want: models.ValidationRejected},
		{name: "invalid title", exitCode: 2, diagnostic: "googleapi: Error 400: invalidTitle", want: models.ValidationRejected},
		{name: "quota wins over auth", exitCode: 1, diagnostic: "googleapi: Error 401: quotaExceeded", want: models.QuotaExceeded},
		{name: "api 401", exitCode: 1, diagnostic: "googleapi: Error 401: Request had invalid authentication credentials.", want: models.AuthExpired},
		{name: "http 401", exitCode: 1, diagnostic: "response: 401 Unauthorized", want: models.AuthExpired},
		{name: "digits in file name are not auth", exitCode: 1, diagnostic: "Error opening /vods/alice/2024-03-02 Stream [2401987654]-video.mp4: connection reset by peer", want: models.OtherFailure},
		{name: "rate limit is not quota", exitCode: 1, diagnostic: "googleapi: Error 403: User Rate Limit Exceeded, userRateLimitExceeded", want: models.OtherFailure},
		{name: "auth wins over validation", exitCode: 1, diagnostic: "invalid_grant while sending recordingDate", want: models.AuthExpired},
		{name: "unknown failure", exitCode: 1, diagnostic: "connection reset by peer", want: models.OtherFailure},
		{name: "empty diagnostic", exitCode: -1, diagnostic: "", want: models.OtherFailure},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.exitCode, tt.diagnostic); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("custom patterns replace a group", func(t *testing.T) {
		custom := NewSubstringClassifier(Patterns{Validation: []string{"bad thumbnail"}})
		if got := custom.Classify(1, "Bad Thumbnail size"); got != models.ValidationRejected {
			t.Errorf("expected validation, got %v", got)
		}
		if got := custom.Classify(1, "invalidTitle"); got != models.OtherFailure {
			t.Errorf("default validation patterns should be replaced, got %v", got)
		}
		if got := custom.Classify(1, "quotaExceeded"); got != models.QuotaExceeded {
			t.Errorf("quota defaults should remain, got %v", got)
		}
	})
}
