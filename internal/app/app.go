// Package app wires configuration, the warehouse session and the pipeline
// components into the two command-line entry points.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"dwh-etl/internal/cloud"
	"dwh-etl/internal/config"
	"dwh-etl/internal/logging"
	"dwh-etl/internal/staging"
	"dwh-etl/internal/util"
	"dwh-etl/internal/warehouse"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/oklog/ulid/v2"
)

// Define common application-level errors.
var (
	ErrUsage          = errors.New("usage error")
	ErrConfigNotFound = errors.New("configuration file not found")
)

// passwordResolver looks up the cluster password in a secret store.
type passwordResolver interface {
	Password(ctx context.Context, id string) (string, error)
}

// --- Factory Variables (Allow Overriding for Testing) ---
var (
	loadSettingsFunc = config.Load

	connectFunc = func(ctx context.Context, c config.Connection) (warehouse.Session, error) {
		conn, err := warehouse.Connect(ctx, c)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	newAWSConfigFunc = cloud.NewAWS

	newProberFunc = func(cfg aws.Config) staging.Prober {
		return cloud.NewS3Prober(cfg)
	}

	newPasswordResolverFunc = func(cfg aws.Config) passwordResolver {
		return cloud.NewSecretResolver(cfg)
	}

	newRunIDFunc = func() string { return ulid.Make().String() }
	nowFunc      = time.Now
	osStatFunc   = os.Stat
)

// options holds the flags shared by both commands.
type options struct {
	configFile string
	logLevel   string
	dryRun     bool
	reportFile string
	help       bool
	fs         *flag.FlagSet
}

func parseFlags(name string, args []string, withReport bool) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.configFile, "config", config.DefaultConfigFile, "YAML settings file")
	fs.StringVar(&opts.logLevel, "loglevel", config.DefaultLogLevel, "Logging level")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Echo statements without connecting")
	if withReport {
		fs.StringVar(&opts.reportFile, "report", "", "Write an XLSX run report")
	}
	fs.BoolVar(&opts.help, "help", false, "Show help")
	opts.fs = fs

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			opts.help = true
			return opts, nil
		}
		logging.Logf(logging.Error, "Failed to parse args: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments: %s", ErrUsage, strings.Join(fs.Args(), " "))
	}
	if opts.reportFile != "" && !strings.HasSuffix(strings.ToLower(opts.reportFile), ".xlsx") {
		return nil, fmt.Errorf("%w: -report must name an .xlsx file, got '%s'", ErrUsage, opts.reportFile)
	}
	return opts, nil
}

// prepare sets up logging and the run id, then loads the settings file.
func prepare(command string, opts *options) (*config.Settings, error) {
	logging.SetupLogging(opts.logLevel)

	runID := newRunIDFunc()
	logging.SetRunID(runID)
	logging.Logf(logging.Info, "Starting %s (run %s) with settings: %s", command, runID, opts.configFile)

	if _, err := osStatFunc(opts.configFile); err != nil {
		if os.IsNotExist(err) {
			logging.Logf(logging.Error, "Settings file '%s' not found.", opts.configFile)
			return nil, fmt.Errorf("%w: %w: %s", config.ErrConfiguration, ErrConfigNotFound, opts.configFile)
		}
		return nil, fmt.Errorf("%w: failed to stat settings file '%s': %w", config.ErrConfiguration, opts.configFile, err)
	}
	s, err := loadSettingsFunc(opts.configFile)
	if err != nil {
		logging.Logf(logging.Error, "Error loading/validating settings '%s': %v", opts.configFile, err)
		return nil, err
	}
	if !isFlagSet(opts.fs, "loglevel") && s.Logging.Level != "" {
		logging.SetupLogging(s.Logging.Level)
	}
	if opts.dryRun {
		logging.Logf(logging.Info, "DRY RUN: statements are echoed, nothing is sent to the cluster.")
	}
	return s, nil
}

// openSession connects to the cluster, resolving the password from Secrets
// Manager when only a secret id is configured. Dry runs never connect and
// get a nil session.
func openSession(ctx context.Context, s *config.Settings, dryRun bool) (warehouse.Session, error) {
	if dryRun {
		return nil, nil
	}
	c := s.Connection()
	if c.Password == "" && c.PasswordSecretID != "" {
		awsCfg, err := newAWSConfigFunc(ctx, s.S3.Region)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", warehouse.ErrConnection, err)
		}
		pw, err := newPasswordResolverFunc(awsCfg).Password(ctx, c.PasswordSecretID)
		if err != nil {
			return nil, fmt.Errorf("%w: resolving cluster password: %w", warehouse.ErrConnection, err)
		}
		c.Password = pw
	}
	logging.Logf(logging.Debug, "Opening warehouse session (%s)", util.MaskCredentials(warehouse.DSN(c)))
	return connectFunc(ctx, c)
}

func closeSession(session warehouse.Session) {
	if session == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.Close(ctx); err != nil {
		logging.Logf(logging.Warning, "Failed to close warehouse session: %v", err)
	} else {
		logging.Logf(logging.Debug, "Warehouse session closed.")
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
