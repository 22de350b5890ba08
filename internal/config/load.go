package config

import (
	"errors"
	"fmt"
	"os"

	"dwh-etl/internal/logging"
	"dwh-etl/internal/util"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks every failure to produce usable settings:
// missing file, malformed YAML, or a missing/invalid key.
var ErrConfiguration = errors.New("configuration error")

// loadDotEnvFunc allows tests to skip reading a .env file.
var loadDotEnvFunc = func() error { return godotenv.Load() }

// Load reads, expands, defaults and validates the settings file.
// Variables from a .env file in the working directory are made available
// for expansion; already-set environment variables win.
func Load(filename string) (*Settings, error) {
	if err := loadDotEnvFunc(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Logf(logging.Warning, "Ignoring unreadable .env file: %v", err)
	}

	fileBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read settings file '%s': %v", ErrConfiguration, filename, err)
	}

	var settings Settings
	if err := yaml.Unmarshal(fileBytes, &settings); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML in '%s': %v", ErrConfiguration, filename, err)
	}

	expandEnv(&settings)
	applyDefaults(&settings)

	if err := ValidateSettings(&settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// expandEnv expands $VAR, ${VAR} and %VAR% in every string value.
func expandEnv(s *Settings) {
	for _, p := range []*string{
		&s.Logging.Level,
		&s.Cluster.Host, &s.Cluster.DBName, &s.Cluster.User, &s.Cluster.Password,
		&s.Cluster.PasswordSecretID, &s.Cluster.SSLMode, &s.Cluster.ConnectTimeout,
		&s.S3.LogData, &s.S3.SongData, &s.S3.LogJSONPath, &s.S3.Region,
		&s.IAMRole.ARN,
		&s.Pipeline.CommitMode,
		&s.Report.File,
	} {
		*p = util.ExpandEnvUniversal(*p)
	}
}

// applyDefaults fills optional keys only. Required keys are never defaulted.
func applyDefaults(s *Settings) {
	if s.Logging.Level == "" {
		s.Logging.Level = DefaultLogLevel
	}
	if s.S3.Region == "" {
		s.S3.Region = DefaultRegion
	}
	if s.Pipeline.CommitMode == "" {
		s.Pipeline.CommitMode = DefaultCommitMode
	}
}
