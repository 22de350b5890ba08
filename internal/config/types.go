package config

import "time"

// Define constants for configuration keys, modes and defaults.
const (
	CommitModeStatement = "statement" // Commit after every catalog step
	CommitModePhase     = "phase"     // One transaction per phase (drop, create, copy, insert)

	DefaultLogLevel   = "info"
	DefaultRegion     = "us-west-2"
	DefaultCommitMode = CommitModeStatement
	DefaultConfigFile = "dwh.yaml"
)

// Settings is the root of the YAML settings file.
//
// The three required sections mirror the warehouse settings: cluster
// connection, S3 source locations and the IAM role the cluster assumes
// for COPY. Everything else is optional.
type Settings struct {
	// Logging configuration specifies the verbosity level.
	Logging LoggingConfig `yaml:"logging"`
	// Cluster holds the Redshift connection parameters. Required.
	Cluster ClusterConfig `yaml:"cluster"`
	// S3 holds the object-storage locations read by the COPY commands. Required.
	S3 S3Config `yaml:"s3"`
	// IAMRole is the role the cluster assumes to read from S3. Required.
	IAMRole IAMRoleConfig `yaml:"iam_role"`
	// Pipeline tunes how catalog statements are committed.
	Pipeline PipelineConfig `yaml:"pipeline"`
	// Checks are boolean expressions evaluated against table metrics after the insert phase.
	Checks []CheckConfig `yaml:"checks,omitempty"`
	// Report configures the optional XLSX run report.
	Report ReportConfig `yaml:"report,omitempty"`
}

// LoggingConfig holds settings related to logging verbosity.
type LoggingConfig struct {
	// Level is one of none, error, warn, info, debug. Defaults to "info".
	Level string `yaml:"level"`
}

// ClusterConfig describes how to reach the warehouse.
type ClusterConfig struct {
	Host     string `yaml:"host"`
	DBName   string `yaml:"dbname"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Port     int    `yaml:"port"`
	// PasswordSecretID names a Secrets Manager secret holding the password.
	// Used only when Password is empty.
	PasswordSecretID string `yaml:"password_secret_id,omitempty"`
	// SSLMode is passed through to the driver (disable, allow, prefer, require, verify-ca, verify-full).
	SSLMode string `yaml:"sslmode,omitempty"`
	// ConnectTimeout bounds connection establishment, e.g. "30s". Empty means no bound.
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`
}

// S3Config lists the COPY sources.
type S3Config struct {
	// LogData is the S3 prefix of the event log JSON objects.
	LogData string `yaml:"log_data"`
	// SongData is the S3 prefix of the song metadata JSON objects.
	SongData string `yaml:"song_data"`
	// LogJSONPath is the JSONPaths manifest mapping event log fields to staging columns.
	LogJSONPath string `yaml:"log_jsonpath"`
	// Region of the source bucket. Defaults to "us-west-2".
	Region string `yaml:"region,omitempty"`
	// Preflight checks that the sources exist in S3 before issuing COPY.
	Preflight bool `yaml:"preflight,omitempty"`
}

// IAMRoleConfig holds the role used in COPY credentials.
type IAMRoleConfig struct {
	ARN string `yaml:"arn"`
}

// PipelineConfig controls transaction granularity.
type PipelineConfig struct {
	// CommitMode is "statement" (default) or "phase".
	CommitMode string `yaml:"commit_mode,omitempty"`
}

// CheckConfig is a named govaluate expression over table metrics.
// Metric names are table names (row counts) plus "orphan_songplays".
type CheckConfig struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// ReportConfig configures the run report.
type ReportConfig struct {
	// File is the .xlsx path to write. Empty disables the report.
	File string `yaml:"file,omitempty"`
}

// Connection is the connection descriptor handed to the warehouse package.
type Connection struct {
	Host             string
	DBName           string
	User             string
	Password         string
	Port             int
	PasswordSecretID string
	SSLMode          string
	ConnectTimeout   time.Duration
}

// LoadParams carries everything the COPY statements need.
type LoadParams struct {
	LogDataPath  string
	SongDataPath string
	LogJSONPath  string
	IAMRoleARN   string
	Region       string
}

// Connection builds the connection descriptor from the cluster section.
func (s *Settings) Connection() Connection {
	// ConnectTimeout was checked by ValidateSettings.
	timeout, _ := time.ParseDuration(s.Cluster.ConnectTimeout)
	return Connection{
		Host:             s.Cluster.Host,
		DBName:           s.Cluster.DBName,
		User:             s.Cluster.User,
		Password:         s.Cluster.Password,
		Port:             s.Cluster.Port,
		PasswordSecretID: s.Cluster.PasswordSecretID,
		SSLMode:          s.Cluster.SSLMode,
		ConnectTimeout:   timeout,
	}
}

// LoadParams builds the COPY parameters from the s3 and iam_role sections.
func (s *Settings) LoadParams() LoadParams {
	return LoadParams{
		LogDataPath:  s.S3.LogData,
		SongDataPath: s.S3.SongData,
		LogJSONPath:  s.S3.LogJSONPath,
		IAMRoleARN:   s.IAMRole.ARN,
		Region:       s.S3.Region,
	}
}
