package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vodsync/internal/formatter"
	"github.com/desertthunder/vodsync/internal/services"
	"github.com/desertthunder/vodsync/internal/shared"
	"github.com/desertthunder/vodsync/internal/store"
	"github.com/desertthunder/vodsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Collaborators left nil are built from the loaded configuration when a command needs them.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	palette    *formatter.Palette
	uploader   services.Uploader
	playlists  store.PlaylistService
	notifier   services.Notifier
	renewal    tasks.RenewalWaiter
	clock      func() time.Time
	sleep      func(context.Context, time.Duration) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Palette    *formatter.Palette
	Uploader   services.Uploader
	Playlists  store.PlaylistService
	Notifier   services.Notifier
	Renewal    tasks.RenewalWaiter
	Clock      func() time.Time
	Sleep      func(context.Context, time.Duration) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Palette == nil {
		opts.Palette = formatter.DefaultPalette
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		palette:    opts.Palette,
		uploader:   opts.Uploader,
		playlists:  opts.Playlists,
		notifier:   opts.Notifier,
		renewal:    opts.Renewal,
		clock:      opts.Clock,
		sleep:      opts.Sleep,
	}
}

// App builds the root command.
func (r *Runner) App() *cli.Command {
	return &cli.Command{
		Name:     "vodsync",
		Usage:    "Upload recorded VODs to YouTube with per-owner playlists",
		Version:  "0.3.0",
		Flags:    globalFlags(),
		Before:   r.Before,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		runCommand, watchCommand, scanCommand, statusCommand, ledgerCommand, playlistsCommand, quotaCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config and applies the log level.
//
// A missing file falls back to the built-in defaults so setup commands work on a fresh install.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if r.configPath == "" {
		r.configPath = cmd.String("config")
	}

	if r.config == nil {
		if _, err := os.Stat(r.configPath); err == nil {
			config, err := shared.LoadConfig(r.configPath)
			if err != nil {
				return ctx, err
			}
			r.config = config
		} else {
			r.logger.Debug("config file not found, using defaults", "path", r.configPath)
			r.config = shared.DefaultConfig()
		}
	}

	level := r.config.Log.Level
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}
	if err := shared.SetLogLevel(r.logger, level); err != nil {
		return ctx, err
	}

	if r.notifier == nil {
		r.notifier = services.NewNotifier(r.config.Notify, r.logger)
	}
	return ctx, nil
}

// guard is the outermost boundary of long-running actions: panics become errors and
// every failure is reported through the notifier before it is returned.
func (r *Runner) guard(name string, action cli.ActionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("unhandled failure", "command", name, "panic", rec, "stack", string(debug.Stack()))
				err = fmt.Errorf("%w: %s: %v", shared.ErrUnhandledExit, name, rec)
			}
			if err == nil || errors.Is(err, shared.ErrRunLocked) || errors.Is(err, context.Canceled) {
				return
			}
			r.notifyFailure(name, err)
		}()
		return action(ctx, cmd)
	}
}

func (r *Runner) notifyFailure(name string, cause error) {
	if r.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := services.Message{
		Title:     "vodsync " + name + " aborted",
		Body:      shared.Truncate(cause.Error(), 1000),
		Severity:  services.SeverityError,
		Timestamp: r.clock(),
	}
	if err := r.notifier.Notify(ctx, msg); err != nil {
		r.logger.Warn("failure notification not delivered", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
