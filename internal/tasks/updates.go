package tasks

import (
	"fmt"

	"github.com/desertthunder/vodsync/internal/models"
)

// ProgressUpdate represents a progress event during a run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current candidate number
	Total   int    // Candidates in this run
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	CheckQuota Phase = iota
	ResolvePlaylist
	Upload
	DegradedUpload
	WaitCredentials
	Finished
)

func (p Phase) String() string {
	switch p {
	case CheckQuota:
		return "check_quota"
	case ResolvePlaylist:
		return "resolve_playlist"
	case Upload:
		return "upload"
	case DegradedUpload:
		return "degraded_upload"
	case WaitCredentials:
		return "wait_credentials"
	case Finished:
		return "finished"
	default:
		return ""
	}
}

func checkQuotaUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CheckQuota,
		Total:   total,
		Message: "Checking quota cooldown...",
	}
}

func resolvePlaylistUpdate(step, total int, owner string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolvePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Resolving playlist for %s...", step, total, owner),
	}
}

func uploadUpdate(step, total int, meta models.UploadMetadata) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Upload,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Uploading: %s", step, total, meta.Title),
		Data:    meta,
	}
}

func degradedUploadUpdate(step, total int, meta models.UploadMetadata) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DegradedUpload,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Retrying with reduced metadata: %s", step, total, meta.Title),
		Data:    meta,
	}
}

func waitCredentialsUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WaitCredentials,
		Step:    step,
		Total:   total,
		Message: "Credentials expired, waiting for a renewed token cache...",
	}
}

func itemDoneUpdate(step, total int, item ItemResult) ProgressUpdate {
	mark := "✗"
	if item.State == models.Succeeded {
		mark = "✓"
	}
	return ProgressUpdate{
		Phase:   Upload,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s (%s)", step, total, mark, item.Title, item.Outcome),
		Data:    item,
	}
}

func finishedUpdate(report *RunReport) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Finished,
		Step:    report.Considered,
		Total:   report.Considered,
		Message: fmt.Sprintf("Run finished: %d uploaded, %d failed, %d skipped (%s)", report.Uploaded, report.Failed, report.Skipped, report.StopReason),
		Data:    report,
	}
}
