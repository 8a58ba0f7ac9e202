package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vodsync/internal/metadata"
	"github.com/desertthunder/vodsync/internal/models"
	"github.com/desertthunder/vodsync/internal/services"
	"github.com/desertthunder/vodsync/internal/shared"
)

// maxDegradedRetries bounds the reduced-metadata retries after a validation rejection.
const maxDegradedRetries = 1

// maxRenewals bounds the credential renewals waited for per candidate.
const maxRenewals = 1

// Ledger records VOD ids confirmed uploaded.
type Ledger interface {
	Contains(id string) bool
	Record(id string) error
}

// PlaylistResolver maps an owner to a remote playlist, creating it on first use.
type PlaylistResolver interface {
	ResolveOrCreate(ctx context.Context, owner string) (string, error)
}

// PlaylistLookup is the read-only side of a [PlaylistResolver], used when planning.
type PlaylistLookup interface {
	Lookup(owner string) (string, bool)
}

// QuotaGate is the persisted quota cooldown.
type QuotaGate interface {
	Blocked(now time.Time) (bool, time.Time)
	Trip(now time.Time, d time.Duration) (time.Time, error)
}

// Journal receives attempt and run history. Errors are logged and otherwise ignored.
type Journal interface {
	RecordAttempt(rec models.AttemptRecord) error
	RecordRun(rec models.RunRecord) error
}

// RenewalWaiter blocks until credentials have been renewed out of band.
type RenewalWaiter interface {
	WaitForRenewal(ctx context.Context) error
}

// StopReason explains why a run ended.
type StopReason int

const (
	StopNone StopReason = iota
	StopCapReached
	StopQuotaExceeded
	StopAuthExpired
	StopCooldown
	StopCanceled
	StopStateWrite
)

func (s StopReason) String() string {
	switch s {
	case StopNone:
		return "none"
	case StopCapReached:
		return "cap_reached"
	case StopQuotaExceeded:
		return "quota_exceeded"
	case StopAuthExpired:
		return "auth_expired"
	case StopCooldown:
		return "cooldown"
	case StopCanceled:
		return "canceled"
	case StopStateWrite:
		return "state_write_failed"
	default:
		return ""
	}
}

// ItemResult is the fate of one candidate within a run.
type ItemResult struct {
	Candidate   models.Candidate
	State       models.AttemptState
	Outcome     models.Outcome
	Attempts    int
	Degraded    bool
	Title       string
	PlaylistID  string
	VideoID     string
	Interrupted bool   // halted by a run-level stop; retried next run
	Skipped     bool   // not attempted because its owner's playlist is unavailable
	Err         string // last diagnostic or error text
}

// RunReport summarizes one orchestration run.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Considered int
	Skipped    int
	Uploaded   int
	Failed     int
	StopReason StopReason
	ResumeAt   *time.Time
	Items      []ItemResult
}

// Record converts the report into its journal row.
func (r *RunReport) Record() models.RunRecord {
	return models.RunRecord{
		ID:         r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Considered: r.Considered,
		Skipped:    r.Skipped,
		Uploaded:   r.Uploaded,
		Failed:     r.Failed,
		StopReason: r.StopReason.String(),
		ResumeAt:   r.ResumeAt,
	}
}

// EngineOptions is the per-run policy.
type EngineOptions struct {
	MaxPerRun     int    // successful uploads per run, 0 for no cap
	CapPolicy     string // shared.CapPolicyOwner or shared.CapPolicyHard
	QuotaCooldown time.Duration
	AuthMode      string // shared.AuthModeWait or shared.AuthModeExit
	Metadata      metadata.Options
}

// Dependencies are the collaborators of an [UploadEngine]. Journal, Renewal and Notifier may be nil.
type Dependencies struct {
	Ledger     Ledger
	Playlists  PlaylistResolver
	Quota      QuotaGate
	Uploader   services.Uploader
	Classifier services.Classifier
	Notifier   services.Notifier
	Journal    Journal
	Renewal    RenewalWaiter
	Logger     *log.Logger
	Clock      func() time.Time
}

// UploadEngine drives candidates through the upload state machine, one at a time.
type UploadEngine struct {
	deps Dependencies
	opts EngineOptions
}

// NewUploadEngine creates an engine. Missing optional dependencies get inert defaults.
func NewUploadEngine(deps Dependencies, opts EngineOptions) *UploadEngine {
	if deps.Logger == nil {
		deps.Logger = shared.NewLogger(nil)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = services.NopNotifier{}
	}
	if deps.Classifier == nil {
		deps.Classifier = services.NewSubstringClassifier(services.Patterns{})
	}
	if opts.QuotaCooldown <= 0 {
		opts.QuotaCooldown = 24 * time.Hour
	}
	if opts.CapPolicy == "" {
		opts.CapPolicy = shared.CapPolicyOwner
	}
	if opts.AuthMode == "" {
		opts.AuthMode = shared.AuthModeExit
	}
	return &UploadEngine{deps: deps, opts: opts}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *UploadEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func (e *UploadEngine) notify(ctx context.Context, severity services.Severity, title, body string) {
	msg := services.Message{Title: title, Body: body, Severity: severity, Timestamp: e.deps.Clock()}
	if err := e.deps.Notifier.Notify(ctx, msg); err != nil {
		e.deps.Logger.Warn("notification failed", "title", title, "error", err)
	}
}

// admission applies the ledger, duplicate, owner-skip and cap rules shared by Run and Plan.
type admission struct {
	opts       EngineOptions
	ledger     Ledger
	seen       map[string]bool
	skipOwners map[string]bool
	uploaded   int
	lastOwner  string
}

type verdict int

const (
	admit verdict = iota
	skipKnown
	skipOwner
	stopCap
)

func newAdmission(opts EngineOptions, ledger Ledger) *admission {
	return &admission{opts: opts, ledger: ledger, seen: make(map[string]bool), skipOwners: make(map[string]bool)}
}

func (a *admission) check(c models.Candidate) verdict {
	if a.seen[c.ID] || a.ledger.Contains(c.ID) {
		return skipKnown
	}
	if a.skipOwners[c.Owner] {
		a.seen[c.ID] = true
		return skipOwner
	}
	if a.opts.MaxPerRun > 0 && a.uploaded >= a.opts.MaxPerRun {
		if a.opts.CapPolicy == shared.CapPolicyHard || c.Owner != a.lastOwner {
			return stopCap
		}
	}
	a.seen[c.ID] = true
	a.lastOwner = c.Owner
	return admit
}

// Run performs one orchestration run over candidates in order.
//
// The returned error is non-nil only when the run had to stop because a confirmed
// upload could not be recorded; the report is returned in every case.
func (e *UploadEngine) Run(ctx context.Context, candidates []models.Candidate, progress chan<- ProgressUpdate) (*RunReport, error) {
	report := &RunReport{
		RunID:      shared.GenerateID(),
		StartedAt:  e.deps.Clock(),
		Considered: len(candidates),
	}
	logger := e.deps.Logger.With("run_id", report.RunID)
	total := len(candidates)

	e.sendProgress(progress, checkQuotaUpdate(total))
	if blocked, resumeAt := e.deps.Quota.Blocked(report.StartedAt); blocked {
		logger.Warn("quota cooldown active, no uploads this run", "resume_at", resumeAt)
		report.StopReason = StopCooldown
		report.ResumeAt = &resumeAt
		return e.finish(report, progress, nil)
	}

	adm := newAdmission(e.opts, e.deps.Ledger)
loop:
	for i, c := range candidates {
		if ctx.Err() != nil {
			report.StopReason = StopCanceled
			break
		}

		switch adm.check(c) {
		case skipKnown:
			report.Skipped++
			continue
		case skipOwner:
			report.Skipped++
			report.Items = append(report.Items, ItemResult{
				Candidate: c,
				State:     models.Pending,
				Skipped:   true,
				Err:       "playlist unavailable for owner",
			})
			continue
		case stopCap:
			logger.Info("upload cap reached", "max_per_run", e.opts.MaxPerRun, "policy", e.opts.CapPolicy, "next_owner", c.Owner)
			report.StopReason = StopCapReached
			break loop
		}

		item, stop, err := e.process(ctx, report.RunID, c, i+1, total, progress)
		report.Items = append(report.Items, item)
		e.sendProgress(progress, itemDoneUpdate(i+1, total, item))

		switch {
		case item.State == models.Succeeded:
			report.Uploaded++
			adm.uploaded++
		case item.State == models.Failed && !item.Interrupted:
			report.Failed++
			if item.PlaylistID == "" {
				adm.skipOwners[c.Owner] = true
			}
		}

		if err != nil {
			report.StopReason = stop
			return e.finish(report, progress, err)
		}
		if stop != StopNone {
			report.StopReason = stop
			if stop == StopQuotaExceeded {
				if _, at := e.deps.Quota.Blocked(e.deps.Clock()); !at.IsZero() {
					report.ResumeAt = &at
				}
			}
			break loop
		}
	}

	return e.finish(report, progress, nil)
}

func (e *UploadEngine) finish(report *RunReport, progress chan<- ProgressUpdate, err error) (*RunReport, error) {
	report.FinishedAt = e.deps.Clock()
	if e.deps.Journal != nil {
		if jerr := e.deps.Journal.RecordRun(report.Record()); jerr != nil {
			e.deps.Logger.Warn("journal run failed", "run_id", report.RunID, "error", jerr)
		}
	}
	e.deps.Logger.Info("run finished",
		"run_id", report.RunID,
		"uploaded", report.Uploaded,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"stop", report.StopReason,
	)
	e.sendProgress(progress, finishedUpdate(report))
	return report, err
}

// process drives one candidate through the state machine:
//
//	Pending → PlaylistResolving → MetadataBuilt → Uploading → Succeeded
//	                                              Uploading → DegradedRetry → Uploading
//	                                              Uploading → Failed
func (e *UploadEngine) process(ctx context.Context, runID string, c models.Candidate, step, total int, progress chan<- ProgressUpdate) (ItemResult, StopReason, error) {
	logger := e.deps.Logger.With("vod_id", c.ID, "owner", c.Owner)
	item := ItemResult{Candidate: c, State: models.Pending}

	var (
		meta      models.UploadMetadata
		degraded  int
		renewals  int
		lastStart time.Time
	)

	state := models.PlaylistResolving
	for !state.Terminal() {
		item.State = state

		switch state {
		case models.PlaylistResolving:
			e.sendProgress(progress, resolvePlaylistUpdate(step, total, c.Owner))
			id, err := e.deps.Playlists.ResolveOrCreate(ctx, c.Owner)
			if err == nil {
				item.PlaylistID = id
				state = models.MetadataBuilt
				continue
			}

			item.Err = err.Error()
			switch {
			case ctx.Err() != nil:
				item.Interrupted = true
				return item, StopCanceled, nil
			case errors.Is(err, shared.ErrQuotaExceeded):
				item.Interrupted = true
				return item, e.onQuotaExceeded(ctx, logger, c, err.Error()), nil
			case errors.Is(err, shared.ErrAuthExpired), errors.Is(err, shared.ErrNotAuthenticated):
				if stop := e.onAuthExpired(ctx, logger, c, &renewals, step, total, progress); stop != StopNone {
					item.Interrupted = true
					return item, stop, nil
				}
			default:
				logger.Error("playlist unavailable, skipping owner for this run", "error", err)
				e.notify(ctx, services.SeverityError, "Playlist creation failed", fmt.Sprintf("%s: %v", c.Owner, err))
				state = models.Failed
			}

		case models.MetadataBuilt:
			meta = metadata.Build(c, item.PlaylistID, e.opts.Metadata)
			item.Title = meta.Title
			state = models.Uploading

		case models.Uploading:
			if item.Degraded {
				e.sendProgress(progress, degradedUploadUpdate(step, total, meta))
			} else {
				e.sendProgress(progress, uploadUpdate(step, total, meta))
			}

			item.Attempts++
			lastStart = e.deps.Clock()
			res, err := e.deps.Uploader.Upload(ctx, c.MediaPath, meta)
			if err != nil && ctx.Err() != nil {
				item.Interrupted = true
				item.Err = err.Error()
				return item, StopCanceled, nil
			}

			outcome := e.deps.Classifier.Classify(res.ExitCode, res.Diagnostic)
			if err != nil {
				outcome = models.OtherFailure
				if res.Diagnostic == "" {
					res.Diagnostic = err.Error()
				}
			}
			item.Outcome = outcome
			item.Err = shared.Truncate(res.Diagnostic, 500)
			e.journalAttempt(logger, runID, c, item, meta, res, lastStart)

			switch outcome {
			case models.Success:
				item.VideoID = res.VideoID
				item.Err = ""
				if err := e.deps.Ledger.Record(c.ID); err != nil {
					item.State = models.Succeeded
					logger.Error("upload succeeded but ledger write failed", "error", err)
					e.notify(ctx, services.SeverityError, "Ledger write failed", fmt.Sprintf("%s uploaded but not recorded: %v", c.ID, err))
					return item, StopStateWrite, fmt.Errorf("%w: recording %s: %w", shared.ErrStateWrite, c.ID, err)
				}
				logger.Info("uploaded", "title", meta.Title, "video_id", res.VideoID, "degraded", item.Degraded)
				e.notify(ctx, services.SeveritySuccess, "Upload complete", fmt.Sprintf("%s\nVOD ID: %s", meta.Title, c.ID))
				state = models.Succeeded

			case models.QuotaExceeded:
				item.Interrupted = true
				item.State = models.Failed
				return item, e.onQuotaExceeded(ctx, logger, c, res.Diagnostic), nil

			case models.AuthExpired:
				if stop := e.onAuthExpired(ctx, logger, c, &renewals, step, total, progress); stop != StopNone {
					item.Interrupted = true
					item.State = models.Failed
					return item, stop, nil
				}
				// Renewed, but a candidate past its degraded retry is not uploaded again this run.
				if degraded > 0 {
					logger.Error("credentials renewed after the degraded retry, giving up on this VOD", "diagnostic", item.Err)
					e.notify(ctx, services.SeverityError, "Upload failed", fmt.Sprintf("%s (%s): credentials expired during the reduced-metadata retry", meta.Title, c.ID))
					state = models.Failed
				}

			case models.ValidationRejected:
				if degraded < maxDegradedRetries {
					degraded++
					logger.Warn("metadata rejected, retrying with reduced metadata", "diagnostic", item.Err)
					state = models.DegradedRetry
					continue
				}
				logger.Error("metadata rejected after degraded retry", "diagnostic", item.Err)
				e.notify(ctx, services.SeverityError, "Upload rejected", fmt.Sprintf("%s (%s): %s", meta.Title, c.ID, item.Err))
				state = models.Failed

			default:
				logger.Error("upload failed", "exit_code", res.ExitCode, "diagnostic", item.Err)
				e.notify(ctx, services.SeverityError, "Upload failed", fmt.Sprintf("%s (%s): %s", meta.Title, c.ID, item.Err))
				state = models.Failed
			}

		case models.DegradedRetry:
			meta = metadata.Degrade(c, meta)
			item.Degraded = true
			item.Title = meta.Title
			state = models.Uploading
		}
	}

	item.State = state
	return item, StopNone, nil
}

func (e *UploadEngine) onQuotaExceeded(ctx context.Context, logger *log.Logger, c models.Candidate, diagnostic string) StopReason {
	resumeAt, err := e.deps.Quota.Trip(e.deps.Clock(), e.opts.QuotaCooldown)
	if err != nil {
		logger.Error("quota cooldown not persisted", "error", err)
	}
	logger.Warn("quota exceeded, stopping run", "resume_at", resumeAt)
	e.notify(ctx, services.SeverityWarning, "Upload quota exceeded",
		fmt.Sprintf("Stopped at %s. Uploads resume after %s.\n%s", c.ID, resumeAt.Format(time.RFC3339), shared.Truncate(diagnostic, 300)))
	return StopQuotaExceeded
}

// onAuthExpired reports whether the candidate may be re-attempted after a credential renewal.
func (e *UploadEngine) onAuthExpired(ctx context.Context, logger *log.Logger, c models.Candidate, renewals *int, step, total int, progress chan<- ProgressUpdate) StopReason {
	e.notify(ctx, services.SeverityError, "Credentials expired", fmt.Sprintf("Upload of %s needs renewed credentials.", c.ID))

	if e.opts.AuthMode != shared.AuthModeWait || e.deps.Renewal == nil {
		logger.Error("credentials expired, stopping run")
		return StopAuthExpired
	}
	if *renewals >= maxRenewals {
		logger.Error("credentials rejected again after renewal, stopping run")
		return StopAuthExpired
	}

	*renewals++
	e.sendProgress(progress, waitCredentialsUpdate(step, total))
	if err := e.deps.Renewal.WaitForRenewal(ctx); err != nil {
		if ctx.Err() != nil {
			return StopCanceled
		}
		logger.Error("no renewed credentials", "error", err)
		return StopAuthExpired
	}
	logger.Info("credentials renewed, retrying")
	return StopNone
}

func (e *UploadEngine) journalAttempt(logger *log.Logger, runID string, c models.Candidate, item ItemResult, meta models.UploadMetadata, res services.UploadResult, started time.Time) {
	if e.deps.Journal == nil {
		return
	}
	rec := models.AttemptRecord{
		RunID:      runID,
		VodID:      c.ID,
		Owner:      c.Owner,
		Attempt:    item.Attempts,
		Degraded:   item.Degraded,
		Outcome:    item.Outcome,
		ExitCode:   res.ExitCode,
		Diagnostic: res.Diagnostic,
		Title:      meta.Title,
		StartedAt:  started,
		FinishedAt: e.deps.Clock(),
	}
	if err := e.deps.Journal.RecordAttempt(rec); err != nil {
		logger.Warn("journal attempt failed", "error", err)
	}
}

// PlannedUpload is one entry of a dry-run plan.
type PlannedUpload struct {
	Candidate   models.Candidate
	Metadata    models.UploadMetadata
	NewPlaylist bool // the owner has no cached playlist yet
}

// Plan is the result of [UploadEngine.Plan].
type Plan struct {
	Items      []PlannedUpload
	Skipped    int
	StopReason StopReason
	ResumeAt   *time.Time
}

// Plan applies the admission rules assuming every upload succeeds, without remote calls.
func (e *UploadEngine) Plan(candidates []models.Candidate) Plan {
	var plan Plan
	if blocked, resumeAt := e.deps.Quota.Blocked(e.deps.Clock()); blocked {
		plan.StopReason = StopCooldown
		plan.ResumeAt = &resumeAt
		return plan
	}

	lookup, _ := e.deps.Playlists.(PlaylistLookup)
	adm := newAdmission(e.opts, e.deps.Ledger)
	for _, c := range candidates {
		v := adm.check(c)
		if v == stopCap {
			plan.StopReason = StopCapReached
			break
		}
		if v != admit {
			plan.Skipped++
			continue
		}

		var playlistID string
		cached := false
		if lookup != nil {
			playlistID, cached = lookup.Lookup(c.Owner)
		}
		plan.Items = append(plan.Items, PlannedUpload{
			Candidate:   c,
			Metadata:    metadata.Build(c, playlistID, e.opts.Metadata),
			NewPlaylist: !cached,
		})
		adm.uploaded++
	}
	return plan
}
