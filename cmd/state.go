package main

import (
	"context"
	"os"

	"github.com/desertthunder/vodsync/internal/formatter"
	"github.com/desertthunder/vodsync/internal/metadata"
	"github.com/desertthunder/vodsync/internal/scanner"
	"github.com/urfave/cli/v3"
)

// Scan lists discovered candidates with their upload status.
func (r *Runner) Scan(ctx context.Context, cmd *cli.Command) error {
	if cmd.IsSet("root") {
		r.config.Storage.Root = cmd.String("root")
	}

	s, err := r.openState(ctx, false)
	if err != nil {
		return err
	}

	candidates, err := scanner.New(r.config.Storage.Root, r.logger).Scan(ctx)
	if err != nil {
		return err
	}

	entries := make([]formatter.ScanEntry, 0, len(candidates))
	for _, c := range candidates {
		entries = append(entries, formatter.ScanEntry{
			ID:        c.ID,
			Owner:     c.Owner,
			Title:     metadata.Title(c, true),
			StartedAt: c.StartedAt,
			MediaPath: c.MediaPath,
			Uploaded:  s.ledger.Contains(c.ID),
		})
	}

	switch {
	case cmd.Bool("json"):
		return r.writeJSON(entries, true)
	case cmd.Bool("csv"):
		data, err := formatter.ScanToCSV(entries)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	default:
		return r.writeBytes(formatter.ScanToText(entries, r.palette))
	}
}

// Status summarizes the ledger, playlist directory, quota cooldown and recent journal attempts.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openState(ctx, false)
	if err != nil {
		return err
	}

	blocked, _ := s.quota.Blocked(r.clock())
	status := formatter.Status{
		LedgerPath: s.ledger.Path(),
		Uploaded:   s.ledger.Len(),
		Playlists:  s.playlists.Entries(),
		Blocked:    blocked,
		ResumeAt:   s.quota.ResumeAt(),
	}

	if path := r.config.Database.Path; path != "" {
		if _, err := os.Stat(path); err == nil {
			r.openJournal(s)
			defer s.Close()
		}
	}
	if s.journal != nil {
		recent, err := s.journal.Attempts().Recent(cmd.Int("limit"))
		if err != nil {
			r.logger.Warn("failed to read recent attempts", "error", err)
		}
		status.Recent = recent
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}
	return r.writeBytes(formatter.StatusToText(status, r.palette))
}

// LedgerList prints every uploaded VOD id in ledger order.
func (r *Runner) LedgerList(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openState(ctx, false)
	if err != nil {
		return err
	}

	ids := s.ledger.IDs()
	if cmd.Bool("json") {
		return r.writeJSON(ids, true)
	}
	for _, id := range ids {
		if err := r.writePlain("%s\n", id); err != nil {
			return err
		}
	}
	r.logger.Debug("ledger listed", "path", s.ledger.Path(), "count", len(ids))
	return nil
}

// PlaylistsList prints the cached owner to playlist mapping.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openState(ctx, false)
	if err != nil {
		return err
	}

	entries := s.playlists.Entries()
	if cmd.Bool("json") {
		return r.writeJSON(entries, true)
	}
	return r.writeBytes(formatter.PlaylistsToText(entries, r.palette))
}

// QuotaStatus prints the quota cooldown state.
func (r *Runner) QuotaStatus(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openState(ctx, false)
	if err != nil {
		return err
	}
	blocked, _ := s.quota.Blocked(r.clock())
	return r.writeBytes(formatter.QuotaToText(blocked, s.quota.ResumeAt(), r.palette))
}

// QuotaClear removes the quota cooldown so the next run uploads immediately.
func (r *Runner) QuotaClear(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openState(ctx, false)
	if err != nil {
		return err
	}
	if err := s.quota.Clear(); err != nil {
		return err
	}
	r.logger.Info("quota cooldown cleared", "path", r.config.QuotaPath())
	return r.writePlain("%s\n", r.palette.Success("✓ Quota cooldown cleared"))
}

