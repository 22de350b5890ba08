package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"dwh-etl/internal/catalog"
	"dwh-etl/internal/logging"
	"dwh-etl/internal/schema"
	"dwh-etl/internal/warehouse"
)

const createTablesUsage = `Usage:
  create-tables [options]

Drops and recreates the staging and star-schema tables.

Options:
  -config string
        YAML settings file (default "dwh.yaml")
  -loglevel string
        Logging level (none, error, warn, info, debug) (default "info")
  -dry-run
        Echo the DROP/CREATE statements without connecting (default false)
  -help
        Show help

Environment Variables:
  Any VAR          Can be used in the settings file via $VAR/${VAR} or %VAR%
                   (also read from a .env file in the working directory)

Examples:
  create-tables
  create-tables -config=prod.yaml -loglevel=debug
  create-tables -dry-run
`

// CreateTablesRunner drops and recreates every catalog table.
type CreateTablesRunner struct{}

// NewCreateTablesRunner creates a new runner.
func NewCreateTablesRunner() *CreateTablesRunner {
	return &CreateTablesRunner{}
}

// Usage prints the command-line help information to the specified writer.
func (r *CreateTablesRunner) Usage(writer io.Writer) {
	fmt.Fprint(writer, createTablesUsage)
}

// Run parses args, connects and runs drop then create.
func (r *CreateTablesRunner) Run(ctx context.Context, args []string) error {
	opts, err := parseFlags("create-tables", args, false)
	if err != nil {
		return err
	}
	if opts.help {
		r.Usage(os.Stderr)
		return nil
	}

	s, err := prepare("create-tables", opts)
	if err != nil {
		return err
	}

	session, err := openSession(ctx, s, opts.dryRun)
	if err != nil {
		return err
	}
	defer closeSession(session)

	exec := warehouse.NewExecutor(session, s.Pipeline.CommitMode, opts.dryRun)
	mgr := schema.NewManager(catalog.Default(), exec)
	results, err := mgr.Reset(ctx)
	if err != nil {
		return fmt.Errorf("create-tables failed: %w", err)
	}

	var statements int
	for _, res := range results {
		statements += res.Statements
	}
	logging.Logf(logging.Info, "Tables recreated (%d statements).", statements)
	return nil
}
