package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dwh-etl/internal/app"
	"dwh-etl/internal/logging"
)

// main loads staging from S3 and populates the star schema.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runner := app.NewETLRunner()
	err := runner.Run(ctx, os.Args[1:])
	stop()
	if err != nil {
		if errors.Is(err, app.ErrUsage) || errors.Is(err, app.ErrConfigNotFound) {
			fmt.Fprintln(os.Stderr, "")
			runner.Usage(os.Stderr)
		}
		// The failure must be visible even with -loglevel none.
		if logging.GetLevel() < logging.Error {
			logging.SetLevel(logging.Error)
		}
		logging.Logf(logging.Error, "Application execution failed: %v", err)
		os.Exit(1)
	}
	logging.Logf(logging.Info, "ETL process completed successfully.")
}
