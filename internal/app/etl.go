package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"dwh-etl/internal/catalog"
	"dwh-etl/internal/checks"
	"dwh-etl/internal/config"
	"dwh-etl/internal/logging"
	"dwh-etl/internal/report"
	"dwh-etl/internal/staging"
	"dwh-etl/internal/transform"
	"dwh-etl/internal/warehouse"
)

// writeReportFunc allows overriding report.Write for testing.
var writeReportFunc = report.Write

const etlUsage = `Usage:
  etl [options]

Loads the raw S3 datasets into staging and populates the star schema.

Options:
  -config string
        YAML settings file (default "dwh.yaml")
  -loglevel string
        Logging level (none, error, warn, info, debug) (default "info")
  -dry-run
        Echo the COPY/INSERT statements without connecting (default false)
  -report string
        Write an XLSX run report to this path (overrides report.file)
  -help
        Show help

Environment Variables:
  AWS_REGION, AWS_PROFILE, ...
                   Standard AWS settings, used for S3 preflight and
                   Secrets Manager lookups
  Any VAR          Can be used in the settings file via $VAR/${VAR} or %VAR%
                   (also read from a .env file in the working directory)

Examples:
  etl
  etl -config=prod.yaml -report=out/run.xlsx
  etl -dry-run -loglevel=debug
`

// ETLRunner loads staging and populates the analytical tables.
type ETLRunner struct{}

// NewETLRunner creates a new runner.
func NewETLRunner() *ETLRunner {
	return &ETLRunner{}
}

// Usage prints the command-line help information to the specified writer.
func (r *ETLRunner) Usage(writer io.Writer) {
	fmt.Fprint(writer, etlUsage)
}

// Run parses args and runs copy, insert, checks and the optional report.
// The report is written even when a phase fails.
func (r *ETLRunner) Run(ctx context.Context, args []string) error {
	opts, err := parseFlags("etl", args, true)
	if err != nil {
		return err
	}
	if opts.help {
		r.Usage(os.Stderr)
		return nil
	}

	s, err := prepare("etl", opts)
	if err != nil {
		return err
	}
	if err := checks.Validate(s.Checks, catalog.Default()); err != nil {
		logging.Logf(logging.Error, "Invalid checks in settings '%s': %v", opts.configFile, err)
		return err
	}

	rep := report.Run{
		RunID:   logging.RunID(),
		Command: "etl",
		Started: nowFunc(),
		DryRun:  opts.dryRun,
	}
	runErr := r.execute(ctx, s, opts, &rep)
	rep.Finished = nowFunc()
	rep.Err = runErr

	reportFile := s.Report.File
	if opts.reportFile != "" {
		reportFile = opts.reportFile
	}
	if reportFile != "" {
		if err := writeReportFunc(reportFile, rep); err != nil {
			if runErr == nil {
				return fmt.Errorf("failed to write run report: %w", err)
			}
			logging.Logf(logging.Error, "Failed to write run report: %v", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	logging.Logf(logging.Info, "ETL run %s finished in %s.", rep.RunID, rep.Finished.Sub(rep.Started).Round(time.Millisecond))
	return nil
}

func (r *ETLRunner) execute(ctx context.Context, s *config.Settings, opts *options, rep *report.Run) error {
	cat := catalog.Default()
	rep.Tables = report.TableRows(cat, nil)

	session, err := openSession(ctx, s, opts.dryRun)
	if err != nil {
		return err
	}
	defer closeSession(session)

	var prober staging.Prober
	if s.S3.Preflight && !opts.dryRun {
		awsCfg, err := newAWSConfigFunc(ctx, s.S3.Region)
		if err != nil {
			return &staging.LoadError{Err: err}
		}
		prober = newProberFunc(awsCfg)
	}

	exec := warehouse.NewExecutor(session, s.Pipeline.CommitMode, opts.dryRun)

	res, err := staging.NewLoader(cat, exec, s.LoadParams(), prober).LoadStaging(ctx)
	rep.Phases = append(rep.Phases, res)
	if err != nil {
		return err
	}

	res, err = transform.NewEngine(cat, exec).InsertAll(ctx)
	rep.Phases = append(rep.Phases, res)
	if err != nil {
		return fmt.Errorf("insert phase failed: %w", err)
	}

	if opts.dryRun {
		logging.Logf(logging.Info, "DRY RUN: skipping row counts and %d check(s).", len(s.Checks))
		return nil
	}

	metrics, err := checks.Collect(ctx, session, cat)
	if err != nil {
		return err
	}
	rep.Tables = report.TableRows(cat, metrics)
	for _, name := range metrics.Names() {
		logging.Logf(logging.Info, "%s: %d", name, metrics[name])
	}

	results, err := checks.Evaluate(s.Checks, metrics)
	rep.Checks = results
	return err
}
