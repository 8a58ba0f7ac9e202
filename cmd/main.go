package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/vodsync/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := NewRunner(RunnerOpts{Logger: logger})

	if err := runner.App().Run(ctx, os.Args); err != nil {
		if errors.Is(err, shared.ErrRunLocked) {
			logger.Warn("skipping, another run is in progress")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
