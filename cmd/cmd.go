// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
			Sources: cli.EnvVars("VODSYNC_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.EnvVars("VODSYNC_LOG_LEVEL"),
		},
	}
}

// uploadFlags are shared by run and watch.
func uploadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "root",
			Usage:   "Directory containing one folder per owner",
			Sources: cli.EnvVars("VODSYNC_ROOT"),
		},
		&cli.IntFlag{
			Name:    "max",
			Usage:   "Maximum successful uploads per run (0 for no cap)",
			Sources: cli.EnvVars("VODSYNC_MAX_PER_RUN"),
		},
		&cli.StringFlag{
			Name:    "cap-policy",
			Usage:   "Upload cap policy (owner or hard)",
			Sources: cli.EnvVars("VODSYNC_CAP_POLICY"),
		},
		&cli.StringFlag{
			Name:    "visibility",
			Usage:   "Video visibility (private, unlisted or public)",
			Sources: cli.EnvVars("VODSYNC_VISIBILITY"),
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output the run report as JSON",
		},
	}
}

// runCommand performs a single orchestration run.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"upload"},
		Usage:   "Scan for new VODs and upload them",
		Flags: append(uploadFlags(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the upload plan without contacting the platform",
			},
		),
		Action: r.guard("run", r.Run),
	}
}

// watchCommand repeats runs until interrupted.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Run repeatedly, sleeping through quota cooldowns",
		Flags: append(uploadFlags(),
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "Time between runs",
				Value:   time.Hour,
				Sources: cli.EnvVars("VODSYNC_INTERVAL"),
			},
		),
		Action: r.guard("watch", r.Watch),
	}
}

// scanCommand lists discovered candidates.
func scanCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "List discovered VODs and their upload status",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Usage:   "Directory containing one folder per owner",
				Sources: cli.EnvVars("VODSYNC_ROOT"),
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "csv",
				Usage: "Output CSV",
			},
		},
		Action: r.Scan,
	}
}

// statusCommand summarizes persisted state.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show ledger, playlists, quota cooldown and recent attempts",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of recent attempts to show",
				Value: 10,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

// ledgerCommand inspects the upload ledger.
func ledgerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Upload ledger operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List uploaded VOD ids",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.LedgerList,
			},
		},
	}
}

// playlistsCommand inspects the playlist directory.
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "Playlist directory operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List owner to playlist mappings",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.PlaylistsList,
			},
		},
	}
}

// quotaCommand inspects or clears the quota cooldown.
func quotaCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "quota",
		Usage: "Quota cooldown operations",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show the quota cooldown",
				Action: r.QuotaStatus,
			},
			{
				Name:   "clear",
				Usage:  "Remove the quota cooldown",
				Action: r.QuotaClear,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the journal database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write the example configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Destination path (defaults to --config)",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the attempt journal and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}
