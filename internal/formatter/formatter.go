// package formatter renders scan listings, run reports and state summaries as text, CSV or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/vodsync/internal/models"
	"github.com/desertthunder/vodsync/internal/tasks"
)

// ScanEntry is one row of a scan listing.
type ScanEntry struct {
	ID        string     `json:"id"`
	Owner     string     `json:"owner"`
	Title     string     `json:"title"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	MediaPath string     `json:"media_path"`
	Uploaded  bool       `json:"uploaded"`
}

func (e ScanEntry) status() string {
	if e.Uploaded {
		return "uploaded"
	}
	return "pending"
}

func (e ScanEntry) started() string {
	if e.StartedAt == nil {
		return ""
	}
	return e.StartedAt.UTC().Format(time.RFC3339)
}

// ToJSON marshals v with indentation.
func ToJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// ScanToCSV converts scan entries to CSV with columns: ID, Owner, Title, Started, Status, Media
func ScanToCSV(entries []ScanEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Owner", "Title", "Started", "Status", "Media"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range entries {
		record := []string{e.ID, e.Owner, e.Title, e.started(), e.status(), e.MediaPath}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ScanToText lists scan entries grouped by owner.
func ScanToText(entries []ScanEntry, p *Palette) []byte {
	var buf bytes.Buffer
	pending := 0
	owner := ""
	for _, e := range entries {
		if e.Owner != owner {
			owner = e.Owner
			fmt.Fprintf(&buf, "%s\n", p.Title(owner))
		}
		mark := p.Info("•")
		if e.Uploaded {
			mark = p.Success("✓")
		} else {
			pending++
		}
		fmt.Fprintf(&buf, "  %s %s %s\n", mark, e.Title, p.Muted("["+e.ID+"]"))
	}
	fmt.Fprintf(&buf, "\n%d candidates, %d pending\n", len(entries), pending)
	return buf.Bytes()
}

// ItemView is the JSON form of a [tasks.ItemResult].
type ItemView struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	Title       string `json:"title"`
	State       string `json:"state"`
	Outcome     string `json:"outcome,omitempty"`
	Attempts    int    `json:"attempts"`
	Degraded    bool   `json:"degraded,omitempty"`
	PlaylistID  string `json:"playlist_id,omitempty"`
	VideoID     string `json:"video_id,omitempty"`
	Interrupted bool   `json:"interrupted,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ReportView is the JSON form of a [tasks.RunReport].
type ReportView struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Considered int        `json:"considered"`
	Skipped    int        `json:"skipped"`
	Uploaded   int        `json:"uploaded"`
	Failed     int        `json:"failed"`
	StopReason string     `json:"stop_reason"`
	ResumeAt   *time.Time `json:"resume_at,omitempty"`
	Items      []ItemView `json:"items"`
}

// NewReportView flattens report for serialization.
func NewReportView(report *tasks.RunReport) ReportView {
	view := ReportView{
		RunID:      report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Considered: report.Considered,
		Skipped:    report.Skipped,
		Uploaded:   report.Uploaded,
		Failed:     report.Failed,
		StopReason: report.StopReason.String(),
		ResumeAt:   report.ResumeAt,
		Items:      make([]ItemView, 0, len(report.Items)),
	}
	for _, item := range report.Items {
		v := ItemView{
			ID:          item.Candidate.ID,
			Owner:       item.Candidate.Owner,
			Title:       item.Title,
			State:       item.State.String(),
			Attempts:    item.Attempts,
			Degraded:    item.Degraded,
			PlaylistID:  item.PlaylistID,
			VideoID:     item.VideoID,
			Interrupted: item.Interrupted,
			Skipped:     item.Skipped,
			Error:       item.Err,
		}
		if item.Attempts > 0 {
			v.Outcome = item.Outcome.String()
		}
		view.Items = append(view.Items, v)
	}
	return view
}

// ReportToText renders a run report for the console.
func ReportToText(report *tasks.RunReport, p *Palette) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n", p.Title("Run "+report.RunID))
	for _, item := range report.Items {
		name := item.Title
		if name == "" {
			name = item.Candidate.ID
		}
		switch {
		case item.State == models.Succeeded:
			suffix := ""
			if item.Degraded {
				suffix = p.Warning(" (reduced metadata)")
			}
			fmt.Fprintf(&buf, "  %s %s%s\n", p.Success("✓"), name, suffix)
		case item.Skipped:
			fmt.Fprintf(&buf, "  %s %s %s\n", p.Muted("-"), name, p.Muted("skipped: "+item.Err))
		case item.Interrupted:
			fmt.Fprintf(&buf, "  %s %s %s\n", p.Warning("!"), name, p.Warning("interrupted"))
		default:
			fmt.Fprintf(&buf, "  %s %s %s\n", p.Failure("✗"), name, p.Failure(describeFailure(item)))
		}
	}

	fmt.Fprintf(&buf, "\nConsidered: %d  Uploaded: %s  Failed: %s  Skipped: %d\n",
		report.Considered,
		p.Success(fmt.Sprint(report.Uploaded)),
		p.Failure(fmt.Sprint(report.Failed)),
		report.Skipped,
	)
	if line := stopLine(report.StopReason, report.ResumeAt); line != "" {
		fmt.Fprintf(&buf, "%s\n", p.Warning(line))
	}
	return buf.Bytes()
}

func describeFailure(item tasks.ItemResult) string {
	if item.Attempts == 0 {
		return "playlist unavailable"
	}
	return item.Outcome.String()
}

func stopLine(reason tasks.StopReason, resumeAt *time.Time) string {
	switch reason {
	case tasks.StopNone:
		return ""
	case tasks.StopCooldown, tasks.StopQuotaExceeded:
		if resumeAt != nil {
			return fmt.Sprintf("Stopped: %s, uploads resume after %s", reason, resumeAt.Local().Format(time.DateTime))
		}
	}
	return fmt.Sprintf("Stopped: %s", reason)
}

// PlanToText renders a dry-run plan.
func PlanToText(plan tasks.Plan, p *Palette) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n", p.Title("Dry run"))
	for i, item := range plan.Items {
		fmt.Fprintf(&buf, "%3d. %s\n", i+1, item.Metadata.Title)
		playlist := item.Metadata.PlaylistID
		if item.NewPlaylist {
			playlist = p.Info("new playlist")
		}
		date := item.Metadata.RecordingDateString()
		if date == "" {
			date = "none"
		}
		fmt.Fprintf(&buf, "     %s owner=%s playlist=%s recorded=%s tags=%s\n",
			p.Muted(item.Candidate.ID), item.Candidate.Owner, playlist, date, strings.Join(item.Metadata.Tags, ","))
	}
	fmt.Fprintf(&buf, "\n%d to upload, %d already uploaded\n", len(plan.Items), plan.Skipped)
	if line := stopLine(plan.StopReason, plan.ResumeAt); line != "" {
		fmt.Fprintf(&buf, "%s\n", p.Warning(line))
	}
	return buf.Bytes()
}

// Status summarizes persisted state.
type Status struct {
	LedgerPath string                 `json:"ledger_path"`
	Uploaded   int                    `json:"uploaded"`
	Playlists  map[string]string      `json:"playlists"`
	Blocked    bool                   `json:"cooldown_active"`
	ResumeAt   *time.Time             `json:"resume_at,omitempty"`
	Recent     []models.AttemptRecord `json:"recent_attempts,omitempty"`
}

// StatusToText renders a state summary.
func StatusToText(s Status, p *Palette) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n", p.Title("Ledger"))
	fmt.Fprintf(&buf, "  %d uploaded (%s)\n", s.Uploaded, s.LedgerPath)

	fmt.Fprintf(&buf, "%s\n", p.Title("Playlists"))
	buf.Write(PlaylistsToText(s.Playlists, p))

	fmt.Fprintf(&buf, "%s\n", p.Title("Quota"))
	buf.Write(QuotaToText(s.Blocked, s.ResumeAt, p))

	if len(s.Recent) > 0 {
		fmt.Fprintf(&buf, "%s\n", p.Title("Recent attempts"))
		for _, a := range s.Recent {
			outcome := a.Outcome.String()
			if a.Outcome == models.Success {
				outcome = p.Success(outcome)
			} else {
				outcome = p.Failure(outcome)
			}
			fmt.Fprintf(&buf, "  %s %s #%d %s %s\n",
				p.Muted(a.StartedAt.Local().Format(time.DateTime)), a.VodID, a.Attempt, outcome, a.Title)
		}
	}
	return buf.Bytes()
}

// PlaylistsToText lists the owner → playlist mapping sorted by owner.
func PlaylistsToText(entries map[string]string, p *Palette) []byte {
	var buf bytes.Buffer
	if len(entries) == 0 {
		fmt.Fprintf(&buf, "  %s\n", p.Muted("none"))
		return buf.Bytes()
	}
	for _, owner := range slices.Sorted(maps.Keys(entries)) {
		fmt.Fprintf(&buf, "  %s → %s\n", owner, entries[owner])
	}
	return buf.Bytes()
}

// QuotaToText describes the cooldown state.
func QuotaToText(blocked bool, resumeAt *time.Time, p *Palette) []byte {
	switch {
	case blocked && resumeAt != nil:
		return fmt.Appendf(nil, "  %s until %s\n", p.Warning("cooldown active"), resumeAt.Local().Format(time.DateTime))
	case resumeAt != nil:
		return fmt.Appendf(nil, "  %s (last cooldown ended %s)\n", p.Success("clear"), resumeAt.Local().Format(time.DateTime))
	default:
		return fmt.Appendf(nil, "  %s\n", p.Success("clear"))
	}
}
