package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/vodsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the embedded example configuration.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if path == "" {
		path = r.configPath
	}
	if path == "" {
		return fmt.Errorf("%w: --output or --config is required", shared.ErrMissingArgument)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("%s %s\n", r.palette.Success("✓ Config written to"), path)
	r.writePlain("Next steps:\n")
	r.writePlain("1. Set storage.root and the uploader client_secrets/token_cache paths\n")
	r.writePlain("2. Run 'vodsync run --dry-run' to preview the first uploads\n")
	return nil
}

// SetupDatabase initializes the attempt journal and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	path := r.config.Database.Path
	if path == "" {
		return fmt.Errorf("%w: database.path is empty, the journal is disabled", shared.ErrInvalidConfig)
	}

	r.logger.Info("initializing database", "path", path)

	db, err := shared.OpenJournal(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", path)
	return r.writePlain("%s %s\n", r.palette.Success("✓ Journal ready at"), path)
}
