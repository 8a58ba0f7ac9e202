package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/vodsync/internal/formatter"
	"github.com/desertthunder/vodsync/internal/models"
	"github.com/desertthunder/vodsync/internal/services"
	"github.com/desertthunder/vodsync/internal/shared"
	"github.com/desertthunder/vodsync/internal/store"
	tu "github.com/desertthunder/vodsync/internal/testing"
	"github.com/urfave/cli/v3"
)

var testNow = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

// fixture is a runner wired to a temp state dir, a populated storage root and fakes.
type fixture struct {
	dir      string
	config   *shared.Config
	output   *bytes.Buffer
	uploader *tu.FakeUploader
	service  *tu.FakePlaylistService
	notifier *tu.RecordingNotifier
	waits    []time.Duration
	runner   *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "videos")

	tu.WriteVOD(t, root, "alice", "2024-03-02 Big_Win [100]", map[string]any{
		"title":      "Big Win",
		"started_at": "2024-03-02T18:00:00Z",
		"game_name":  "Chess",
	})
	tu.WriteVOD(t, root, "alice", "2024-03-03 Rematch [101]", nil)
	tu.WriteVOD(t, root, "bob", "2024-03-01 Opening [200]", nil)

	config := shared.DefaultConfig()
	config.Storage.Root = root
	config.Storage.StateDir = dir
	config.Database.Path = filepath.Join(dir, "journal.db")
	config.Upload.MaxPerRun = 0

	f := &fixture{
		dir:      dir,
		config:   config,
		output:   &bytes.Buffer{},
		uploader: &tu.FakeUploader{},
		service:  &tu.FakePlaylistService{},
		notifier: &tu.RecordingNotifier{},
	}
	f.runner = NewRunner(RunnerOpts{
		Config:    config,
		Logger:    shared.NewLogger(&bytes.Buffer{}),
		Output:    f.output,
		Palette:   formatter.PlainPalette,
		Uploader:  f.uploader,
		Playlists: f.service,
		Notifier:  f.notifier,
		Clock:     func() time.Time { return testNow },
		Sleep: func(_ context.Context, d time.Duration) error {
			f.waits = append(f.waits, d)
			return context.Canceled
		},
	})
	return f
}

func (f *fixture) run(args ...string) error {
	return f.runner.App().Run(context.Background(), append([]string{"vodsync"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			uploader := &tu.FakeUploader{}

			runner := NewRunner(RunnerOpts{
				Config:   config,
				Logger:   logger,
				Output:   output,
				Uploader: uploader,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.uploader != uploader {
				t.Error("expected uploader to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.palette != formatter.DefaultPalette {
				t.Error("expected default palette")
			}
			if runner.clock == nil || runner.sleep == nil {
				t.Error("expected clock and sleep defaults")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("hello %s", "world"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "hello world" {
			t.Errorf("expected 'hello world', got %q", output.String())
		}

		failing := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
		if err := failing.writePlain("test"); err == nil {
			t.Error("expected error from failing writer")
		}
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		var names []string
		for _, cmd := range runner.register() {
			names = append(names, cmd.Name)
		}

		for _, want := range []string{"run", "watch", "scan", "status", "ledger", "playlists", "quota", "setup"} {
			if !slices.Contains(names, want) {
				t.Errorf("command %q not registered, got %v", want, names)
			}
		}
	})

	t.Run("Before falls back to defaults without a config file", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{}), Output: &bytes.Buffer{}})
		missing := filepath.Join(t.TempDir(), "missing.toml")

		if err := runner.App().Run(context.Background(), []string{"vodsync", "--config", missing, "ledger", "list"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if runner.config == nil || runner.config.Upload.MaxPerRun != 6 {
			t.Errorf("expected default config, got %+v", runner.config)
		}
	})
}

func TestRunCommand(t *testing.T) {
	t.Run("uploads every pending VOD", func(t *testing.T) {
		f := newFixture(t)

		if err := f.run("run", "--json"); err != nil {
			t.Fatalf("run failed: %v", err)
		}

		var report formatter.ReportView
		if err := json.Unmarshal(f.output.Bytes(), &report); err != nil {
			t.Fatalf("invalid report JSON: %v\n%s", err, f.output.String())
		}
		if report.Uploaded != 3 || report.StopReason != "none" {
			t.Errorf("unexpected report %+v", report)
		}
		if f.uploader.CallCount() != 3 {
			t.Errorf("expected 3 uploads, got %d", f.uploader.CallCount())
		}
		if got := f.uploader.Calls[0].Meta.Title; got != "240302 Big Win" {
			t.Errorf("first upload title = %q", got)
		}

		ledger := tu.MustReadFile(t, f.config.LedgerPath())
		for _, id := range []string{"100", "101", "200"} {
			if !strings.Contains(ledger, id) {
				t.Errorf("ledger missing %s: %s", id, ledger)
			}
		}
		tu.AssertFileExists(t, f.config.PlaylistsPath())
		tu.AssertFileExists(t, f.config.Database.Path)
	})

	t.Run("second run uploads nothing", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run("run", "--json"); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		f.output.Reset()

		if err := f.run("run"); err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		if f.uploader.CallCount() != 3 {
			t.Errorf("expected no further uploads, got %d calls", f.uploader.CallCount())
		}
		if !strings.Contains(f.output.String(), "Uploaded: 0") {
			t.Errorf("unexpected output:\n%s", f.output.String())
		}
		if len(f.service.Creates) != 2 {
			t.Errorf("expected one playlist per owner, got %v", f.service.Creates)
		}
	})

	t.Run("max flag applies the cap", func(t *testing.T) {
		f := newFixture(t)

		if err := f.run("run", "--max", "1", "--cap-policy", "hard"); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if f.uploader.CallCount() != 1 {
			t.Errorf("expected 1 upload, got %d", f.uploader.CallCount())
		}
		if !strings.Contains(f.output.String(), "Stopped: cap_reached") {
			t.Errorf("expected cap stop line, got:\n%s", f.output.String())
		}
	})

	t.Run("invalid flag value is rejected", func(t *testing.T) {
		f := newFixture(t)

		err := f.run("run", "--visibility", "friends-only")
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected invalid config error, got %v", err)
		}
		if f.uploader.CallCount() != 0 {
			t.Error("expected no uploads")
		}
	})

	t.Run("dry run makes no remote calls", func(t *testing.T) {
		f := newFixture(t)

		if err := f.run("run", "--dry-run"); err != nil {
			t.Fatalf("dry run failed: %v", err)
		}
		if f.uploader.CallCount() != 0 || len(f.service.Creates) != 0 {
			t.Error("dry run must not upload or create playlists")
		}
		output := f.output.String()
		if !strings.Contains(output, "240302 Big Win") || !strings.Contains(output, "3 to upload") {
			t.Errorf("unexpected plan:\n%s", output)
		}
	})

	t.Run("held lock fails fast", func(t *testing.T) {
		f := newFixture(t)
		lock := store.NewRunLock(f.config.LockPath())
		if err := lock.TryLock(); err != nil {
			t.Fatalf("failed to take lock: %v", err)
		}
		defer lock.Unlock()

		err := f.run("run")
		if !errors.Is(err, shared.ErrRunLocked) {
			t.Errorf("expected ErrRunLocked, got %v", err)
		}
		if len(f.notifier.Messages) != 0 {
			t.Error("lock contention should not be notified")
		}
	})

	t.Run("quota exhaustion is reported and persisted", func(t *testing.T) {
		f := newFixture(t)
		f.uploader.Respond = func(int, string, models.UploadMetadata) (services.UploadResult, error) {
			return tu.Fail("quotaExceeded"), nil
		}

		if err := f.run("run"); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if f.uploader.CallCount() != 1 {
			t.Errorf("expected the run to stop after the first upload, got %d", f.uploader.CallCount())
		}
		tu.AssertFileExists(t, f.config.QuotaPath())

		f.output.Reset()
		if err := f.run("quota", "status"); err != nil {
			t.Fatalf("quota status failed: %v", err)
		}
		if !strings.Contains(f.output.String(), "cooldown active") {
			t.Errorf("unexpected quota status: %s", f.output.String())
		}

		f.output.Reset()
		if err := f.run("quota", "clear"); err != nil {
			t.Fatalf("quota clear failed: %v", err)
		}
		if _, err := os.Stat(f.config.QuotaPath()); !os.IsNotExist(err) {
			t.Error("expected quota state file to be removed")
		}
	})
}

func TestWatchCommand(t *testing.T) {
	t.Run("sleeps until the quota resume time", func(t *testing.T) {
		f := newFixture(t)
		f.uploader.Respond = func(int, string, models.UploadMetadata) (services.UploadResult, error) {
			return tu.Fail("quotaExceeded"), nil
		}

		if err := f.run("watch", "--interval", "1h"); err != nil {
			t.Fatalf("watch failed: %v", err)
		}
		if len(f.waits) != 1 || f.waits[0] != 24*time.Hour {
			t.Errorf("expected a single 24h wait, got %v", f.waits)
		}
	})

	t.Run("uses the interval otherwise", func(t *testing.T) {
		f := newFixture(t)

		if err := f.run("watch", "--interval", "30m"); err != nil {
			t.Fatalf("watch failed: %v", err)
		}
		if len(f.waits) != 1 || f.waits[0] != 30*time.Minute {
			t.Errorf("expected a single 30m wait, got %v", f.waits)
		}
		if f.uploader.CallCount() != 3 {
			t.Errorf("expected 3 uploads, got %d", f.uploader.CallCount())
		}
	})
}

func TestGuard(t *testing.T) {
	notifier := &tu.RecordingNotifier{}
	runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{}), Notifier: notifier})

	t.Run("panic becomes an error and is notified", func(t *testing.T) {
		action := runner.guard("run", func(context.Context, *cli.Command) error {
			panic("boom")
		})

		err := action(context.Background(), &cli.Command{})
		if !errors.Is(err, shared.ErrUnhandledExit) {
			t.Fatalf("expected ErrUnhandledExit, got %v", err)
		}
		if !strings.Contains(err.Error(), "boom") {
			t.Errorf("expected panic value in error, got %v", err)
		}
		if titles := notifier.Titles(); len(titles) != 1 || titles[0] != "vodsync run aborted" {
			t.Errorf("unexpected notifications %v", titles)
		}
	})

	t.Run("cancellation is not notified", func(t *testing.T) {
		notifier.Messages = nil
		action := runner.guard("watch", func(context.Context, *cli.Command) error {
			return context.Canceled
		})

		if err := action(context.Background(), &cli.Command{}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(notifier.Messages) != 0 {
			t.Errorf("unexpected notifications %v", notifier.Titles())
		}
	})
}

func TestStateCommands(t *testing.T) {
	t.Run("scan csv", func(t *testing.T) {
		f := newFixture(t)

		if err := f.run("scan", "--csv"); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		output := f.output.String()
		if !strings.Contains(output, "100,alice,240302 Big Win,2024-03-02T18:00:00Z,pending,") {
			t.Errorf("unexpected scan output:\n%s", output)
		}
		if strings.Count(output, "\n") != 4 {
			t.Errorf("expected header and 3 rows, got:\n%s", output)
		}
	})

	t.Run("status and listings after a run", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run("run", "--json"); err != nil {
			t.Fatalf("run failed: %v", err)
		}

		f.output.Reset()
		if err := f.run("ledger", "list"); err != nil {
			t.Fatalf("ledger list failed: %v", err)
		}
		if got := strings.Fields(f.output.String()); !slices.Equal(got, []string{"100", "101", "200"}) {
			t.Errorf("unexpected ledger listing %v", got)
		}

		f.output.Reset()
		if err := f.run("playlists", "list", "--json"); err != nil {
			t.Fatalf("playlists list failed: %v", err)
		}
		var entries map[string]string
		if err := json.Unmarshal(f.output.Bytes(), &entries); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if entries["alice"] != "PL-alice VODs" || entries["bob"] != "PL-bob VODs" {
			t.Errorf("unexpected playlists %v", entries)
		}

		f.output.Reset()
		if err := f.run("status"); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		output := f.output.String()
		if !strings.Contains(output, "3 uploaded") || !strings.Contains(output, "Recent attempts") {
			t.Errorf("unexpected status:\n%s", output)
		}
	})

	t.Run("setup config and database", func(t *testing.T) {
		f := newFixture(t)
		configPath := filepath.Join(f.dir, "conf", "config.toml")

		if err := f.run("setup", "config", "--output", configPath); err != nil {
			t.Fatalf("setup config failed: %v", err)
		}
		if !strings.Contains(tu.MustReadFile(t, configPath), "[upload]") {
			t.Error("expected example config content")
		}
		if err := f.run("setup", "config", "--output", configPath); err == nil {
			t.Error("expected error when config already exists")
		}

		if err := f.run("setup", "database"); err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		tu.AssertFileExists(t, f.config.Database.Path)
	})
}
