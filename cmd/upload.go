package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/vodsync/internal/formatter"
	"github.com/desertthunder/vodsync/internal/metadata"
	"github.com/desertthunder/vodsync/internal/models"
	"github.com/desertthunder/vodsync/internal/repositories"
	"github.com/desertthunder/vodsync/internal/scanner"
	"github.com/desertthunder/vodsync/internal/services"
	"github.com/desertthunder/vodsync/internal/shared"
	"github.com/desertthunder/vodsync/internal/store"
	"github.com/desertthunder/vodsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// applyUploadFlags overrides the loaded configuration with explicitly set flags and validates it.
func (r *Runner) applyUploadFlags(cmd *cli.Command) error {
	if cmd.IsSet("root") {
		r.config.Storage.Root = cmd.String("root")
	}
	if cmd.IsSet("max") {
		r.config.Upload.MaxPerRun = cmd.Int("max")
	}
	if cmd.IsSet("cap-policy") {
		r.config.Upload.CapPolicy = cmd.String("cap-policy")
	}
	if cmd.IsSet("visibility") {
		r.config.Upload.Visibility = cmd.String("visibility")
	}
	return r.config.Validate()
}

// state is the persisted state a run works against.
type state struct {
	ledger    *store.Ledger
	quota     *store.QuotaGate
	playlists *store.PlaylistDirectory
	journal   *repositories.JournalAdapter
	db        *sql.DB
}

func (s *state) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// openState loads the ledger, quota gate and playlist directory.
//
// With remote false the playlist directory has no backing service and only serves cached ids.
func (r *Runner) openState(ctx context.Context, remote bool) (*state, error) {
	cfg := r.config
	ledger, err := store.OpenLedger(cfg.LedgerPath(), r.logger)
	if err != nil {
		return nil, err
	}
	quota, err := store.OpenQuotaGate(cfg.QuotaPath(), r.logger)
	if err != nil {
		return nil, err
	}

	var service store.PlaylistService
	if remote {
		if service, err = r.playlistService(ctx); err != nil {
			return nil, err
		}
	}
	defaults := store.PlaylistDefaults{Visibility: models.Visibility(cfg.Upload.Visibility)}
	playlists, err := store.OpenPlaylistDirectory(cfg.PlaylistsPath(), service, defaults, r.logger)
	if err != nil {
		return nil, err
	}

	return &state{ledger: ledger, quota: quota, playlists: playlists}, nil
}

func (r *Runner) playlistService(ctx context.Context) (store.PlaylistService, error) {
	if r.playlists != nil {
		return r.playlists, nil
	}
	return services.NewPlaylistService(ctx, r.config, services.NewClassifier(r.config.Classifier), r.logger)
}

// openJournal attaches the attempt journal. Journal problems never block uploads.
func (r *Runner) openJournal(s *state) {
	if r.config.Database.Path == "" {
		return
	}
	db, err := shared.OpenJournal(r.config.Database)
	if err != nil {
		r.logger.Warn("attempt journal unavailable", "path", r.config.Database.Path, "error", err)
		return
	}
	s.db = db
	s.journal = repositories.NewJournalAdapter(db)
}

func (r *Runner) metadataOptions() metadata.Options {
	u := r.config.Upload
	return metadata.Options{
		Visibility:      models.Visibility(u.Visibility),
		Language:        u.Language,
		FixedTag:        u.FixedTag,
		ThumbnailWidth:  u.ThumbnailWidth,
		ThumbnailHeight: u.ThumbnailHeight,
	}
}

func (r *Runner) engineOptions() tasks.EngineOptions {
	return tasks.EngineOptions{
		MaxPerRun:     r.config.Upload.MaxPerRun,
		CapPolicy:     r.config.Upload.CapPolicy,
		QuotaCooldown: r.config.Upload.QuotaCooldown.Duration,
		AuthMode:      r.config.Auth.Mode,
		Metadata:      r.metadataOptions(),
	}
}

func (r *Runner) newEngine(s *state) *tasks.UploadEngine {
	cfg := r.config
	deps := tasks.Dependencies{
		Ledger:     s.ledger,
		Playlists:  s.playlists,
		Quota:      s.quota,
		Uploader:   r.uploader,
		Classifier: services.NewClassifier(cfg.Classifier),
		Notifier:   r.notifier,
		Renewal:    r.renewal,
		Logger:     r.logger,
		Clock:      r.clock,
	}
	if deps.Uploader == nil {
		deps.Uploader = services.NewCommandUploader(services.UploaderOptionsFromConfig(cfg.Uploader), r.logger)
	}
	if deps.Renewal == nil && cfg.Auth.Mode == shared.AuthModeWait {
		deps.Renewal = services.NewCredentialWatcher(cfg.Uploader.TokenCache, cfg.Auth.PollInterval.Duration, cfg.Auth.WaitTimeout.Duration, r.logger)
	}
	if s.journal != nil {
		deps.Journal = s.journal
	}
	return tasks.NewUploadEngine(deps, r.engineOptions())
}

// Run performs one orchestration run, or prints the plan with --dry-run.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	if err := r.applyUploadFlags(cmd); err != nil {
		return err
	}
	asJSON := cmd.Bool("json")

	if cmd.Bool("dry-run") {
		return r.dryRun(ctx, asJSON)
	}

	report, err := r.runOnce(ctx, !asJSON)
	if report != nil {
		if werr := r.writeReport(report, asJSON); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

// runOnce holds the run lock for the duration of one engine run.
func (r *Runner) runOnce(ctx context.Context, showProgress bool) (*tasks.RunReport, error) {
	lock := store.NewRunLock(r.config.LockPath())
	if err := lock.TryLock(); err != nil {
		return nil, err
	}
	defer lock.Unlock()

	s, err := r.openState(ctx, true)
	if err != nil {
		return nil, err
	}
	r.openJournal(s)
	defer s.Close()

	candidates, err := scanner.New(r.config.Storage.Root, r.logger).Scan(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Info("scan complete", "root", r.config.Storage.Root, "candidates", len(candidates))

	engine := r.newEngine(s)

	var progressCh chan tasks.ProgressUpdate
	done := make(chan struct{})
	if showProgress {
		progressCh = make(chan tasks.ProgressUpdate, 50)
		go func() {
			defer close(done)
			for update := range progressCh {
				r.writeProgress(update)
			}
		}()
	} else {
		close(done)
	}

	report, err := engine.Run(ctx, candidates, progressCh)
	if progressCh != nil {
		close(progressCh)
	}
	<-done

	return report, err
}

func (r *Runner) writeProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.ResolvePlaylist:
		r.writePlain("%s\n", r.palette.Muted(update.Message))
	case tasks.Upload:
		if item, ok := update.Data.(tasks.ItemResult); ok {
			if item.State == models.Succeeded {
				r.writePlain("%s\n", r.palette.Success(update.Message))
			} else {
				r.writePlain("%s\n", r.palette.Failure(update.Message))
			}
			return
		}
		r.writePlain("%s\n", r.palette.Info(update.Message))
	case tasks.DegradedUpload, tasks.WaitCredentials:
		r.writePlain("%s\n", r.palette.Warning(update.Message))
	}
}

func (r *Runner) writeReport(report *tasks.RunReport, asJSON bool) error {
	if asJSON {
		return r.writeJSON(formatter.NewReportView(report), true)
	}
	return r.writeBytes(formatter.ReportToText(report, r.palette))
}

func (r *Runner) dryRun(ctx context.Context, asJSON bool) error {
	s, err := r.openState(ctx, false)
	if err != nil {
		return err
	}

	candidates, err := scanner.New(r.config.Storage.Root, r.logger).Scan(ctx)
	if err != nil {
		return err
	}

	plan := r.newEngine(s).Plan(candidates)
	if asJSON {
		type plannedView struct {
			ID          string                `json:"id"`
			Owner       string                `json:"owner"`
			NewPlaylist bool                  `json:"new_playlist"`
			Metadata    models.UploadMetadata `json:"metadata"`
		}
		items := make([]plannedView, 0, len(plan.Items))
		for _, item := range plan.Items {
			items = append(items, plannedView{item.Candidate.ID, item.Candidate.Owner, item.NewPlaylist, item.Metadata})
		}
		return r.writeJSON(map[string]any{
			"items":       items,
			"skipped":     plan.Skipped,
			"stop_reason": plan.StopReason.String(),
			"resume_at":   plan.ResumeAt,
		}, true)
	}
	return r.writeBytes(formatter.PlanToText(plan, r.palette))
}

// Watch repeats runs every --interval. While the quota cooldown is active it sleeps until the resume time.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	if err := r.applyUploadFlags(cmd); err != nil {
		return err
	}
	interval := cmd.Duration("interval")
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", shared.ErrInvalidArgument)
	}
	asJSON := cmd.Bool("json")

	for {
		report, err := r.runOnce(ctx, false)
		switch {
		case errors.Is(err, shared.ErrRunLocked):
			r.logger.Warn("another run is in progress, waiting for the next interval")
		case err != nil:
			if report != nil {
				r.writeReport(report, asJSON)
			}
			return err
		default:
			if werr := r.writeReport(report, asJSON); werr != nil {
				return werr
			}
			if report.StopReason == tasks.StopCanceled {
				return nil
			}
		}

		wait := r.nextWait(report, interval)
		r.logger.Info("waiting for next run", "in", wait.Round(time.Second))
		if err := r.sleep(ctx, wait); err != nil {
			r.logger.Info("watch stopped")
			return nil
		}
	}
}

func (r *Runner) nextWait(report *tasks.RunReport, interval time.Duration) time.Duration {
	if report == nil || report.ResumeAt == nil {
		return interval
	}
	if report.StopReason != tasks.StopCooldown && report.StopReason != tasks.StopQuotaExceeded {
		return interval
	}
	if until := report.ResumeAt.Sub(r.clock()); until > 0 {
		return until
	}
	return interval
}
