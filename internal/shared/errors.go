package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrAuthExpired      = fmt.Errorf("credentials expired or revoked")
	ErrReauthTimeout    = fmt.Errorf("timed out waiting for renewed credentials")

	// Platform errors
	ErrQuotaExceeded      = fmt.Errorf("upload quota exceeded")
	ErrCooldownActive     = fmt.Errorf("quota cooldown active")
	ErrValidationRejected = fmt.Errorf("metadata rejected by platform")
	ErrUploadFailed       = fmt.Errorf("upload failed")
	ErrPlaylistCreate     = fmt.Errorf("playlist creation failed")
	ErrAPIRequest         = fmt.Errorf("API request failed")

	// Local state errors
	ErrStateCorrupt  = fmt.Errorf("state file corrupt")
	ErrStateWrite    = fmt.Errorf("state file write failed")
	ErrRunLocked     = fmt.Errorf("another run holds the lock")
	ErrNoIdentifier  = fmt.Errorf("no bracketed identifier in file name")
	ErrNotifyFailed  = fmt.Errorf("notification delivery failed")
	ErrUnhandledExit = fmt.Errorf("run aborted by unhandled failure")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
