package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dwh-etl/internal/logging"
)

// --- Test Helper Functions ---

// createTempSettingsFile writes content to a temporary YAML file and returns its path.
// It also stubs out .env loading so the developer's environment cannot leak in.
func createTempSettingsFile(t *testing.T, content string) string {
	t.Helper()
	origDotEnv := loadDotEnvFunc
	loadDotEnvFunc = func() error { return nil }
	t.Cleanup(func() { loadDotEnvFunc = origDotEnv })

	path := filepath.Join(t.TempDir(), "dwh.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write temp settings file: %v", err)
	}
	return path
}

// assertValidationError checks if the error contains all expected substrings.
func assertValidationError(t *testing.T, err error, expectedSubstrings ...string) {
	t.Helper()
	if err == nil {
		t.Errorf("Expected a validation error, but got nil")
		return
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("error %v does not wrap ErrConfiguration", err)
	}
	errStr := err.Error()
	for _, sub := range expectedSubstrings {
		if !strings.Contains(errStr, sub) {
			t.Errorf("Validation error missing expected substring %q.\nError was: %q", sub, errStr)
		}
	}
}

func quietLogs(t *testing.T) {
	t.Helper()
	var buf strings.Builder
	logging.SetOutput(&buf)
	t.Cleanup(func() { logging.SetOutput(os.Stderr) })
}

const validSettingsYAML = `
logging:
  level: debug
cluster:
  host: dwhcluster.abc123.us-west-2.redshift.amazonaws.com
  dbname: dwh
  user: dwhuser
  password: Passw0rd
  port: 5439
  sslmode: require
  connect_timeout: 15s
s3:
  log_data: s3://udacity-dend/log_data
  song_data: s3://udacity-dend/song_data
  log_jsonpath: s3://udacity-dend/log_json_path.json
iam_role:
  arn: arn:aws:iam::123456789012:role/dwhRole
pipeline:
  commit_mode: phase
checks:
  - name: no_orphans
    expr: orphan_songplays == 0
report:
  file: out/run.xlsx
`

// --- Load Tests ---

func TestLoad_Success(t *testing.T) {
	quietLogs(t)
	path := createTempSettingsFile(t, validSettingsYAML)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	conn := s.Connection()
	if conn.Host != "dwhcluster.abc123.us-west-2.redshift.amazonaws.com" {
		t.Errorf("conn.Host = %q", conn.Host)
	}
	if conn.DBName != "dwh" || conn.User != "dwhuser" || conn.Password != "Passw0rd" {
		t.Errorf("conn = %+v, unexpected identity fields", conn)
	}
	if conn.Port != 5439 {
		t.Errorf("conn.Port = %d, want 5439", conn.Port)
	}
	if conn.SSLMode != "require" {
		t.Errorf("conn.SSLMode = %q, want require", conn.SSLMode)
	}
	if conn.ConnectTimeout != 15*time.Second {
		t.Errorf("conn.ConnectTimeout = %v, want 15s", conn.ConnectTimeout)
	}

	p := s.LoadParams()
	if p.LogDataPath != "s3://udacity-dend/log_data" {
		t.Errorf("LogDataPath = %q", p.LogDataPath)
	}
	if p.SongDataPath != "s3://udacity-dend/song_data" {
		t.Errorf("SongDataPath = %q", p.SongDataPath)
	}
	if p.LogJSONPath != "s3://udacity-dend/log_json_path.json" {
		t.Errorf("LogJSONPath = %q", p.LogJSONPath)
	}
	if p.IAMRoleARN != "arn:aws:iam::123456789012:role/dwhRole" {
		t.Errorf("IAMRoleARN = %q", p.IAMRoleARN)
	}
	if p.Region != DefaultRegion {
		t.Errorf("Region = %q, want default %q", p.Region, DefaultRegion)
	}
	if s.Pipeline.CommitMode != CommitModePhase {
		t.Errorf("CommitMode = %q, want %q", s.Pipeline.CommitMode, CommitModePhase)
	}
	if len(s.Checks) != 1 || s.Checks[0].Name != "no_orphans" {
		t.Errorf("Checks = %+v", s.Checks)
	}
	if s.Report.File != "out/run.xlsx" {
		t.Errorf("Report.File = %q", s.Report.File)
	}
}

func TestLoad_Defaults(t *testing.T) {
	quietLogs(t)
	path := createTempSettingsFile(t, `
cluster: { host: h, dbname: d, user: u, password: p, port: 5439 }
s3:
  log_data: s3://b/log
  song_data: s3://b/song
  log_jsonpath: s3://b/paths.json
iam_role: { arn: "arn:aws:iam::1:role/r" }
`)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Logging.Level != DefaultLogLevel {
		t.Errorf("Logging.Level = %q, want %q", s.Logging.Level, DefaultLogLevel)
	}
	if s.Pipeline.CommitMode != DefaultCommitMode {
		t.Errorf("CommitMode = %q, want %q", s.Pipeline.CommitMode, DefaultCommitMode)
	}
	if s.S3.Region != DefaultRegion {
		t.Errorf("Region = %q, want %q", s.S3.Region, DefaultRegion)
	}
	if s.Connection().ConnectTimeout != 0 {
		t.Errorf("ConnectTimeout = %v, want 0", s.Connection().ConnectTimeout)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	quietLogs(t)
	t.Setenv("DWH_TEST_PASSWORD", "fromEnv")
	t.Setenv("DWH_TEST_BUCKET", "my-bucket")
	path := createTempSettingsFile(t, `
cluster: { host: h, dbname: d, user: u, password: "${DWH_TEST_PASSWORD}", port: 5439 }
s3:
  log_data: s3://$DWH_TEST_BUCKET/log
  song_data: s3://%DWH_TEST_BUCKET%/song
  log_jsonpath: s3://${DWH_TEST_BUCKET}/paths.json
iam_role: { arn: "arn:aws:iam::1:role/r" }
`)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Cluster.Password != "fromEnv" {
		t.Errorf("Password = %q, want fromEnv", s.Cluster.Password)
	}
	if s.S3.LogData != "s3://my-bucket/log" || s.S3.SongData != "s3://my-bucket/song" || s.S3.LogJSONPath != "s3://my-bucket/paths.json" {
		t.Errorf("S3 = %+v, want expanded bucket", s.S3)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	createTempSettingsFile(t, "") // stubs .env loading
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() error = nil, want file not found error")
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("Load() error = %v, want ErrConfiguration", err)
	}
	if !strings.Contains(err.Error(), "failed to read settings file") {
		t.Errorf("Load() error = %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := createTempSettingsFile(t, "cluster: host: h: [")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() error = nil, want YAML error")
	}
	if !errors.Is(err, ErrConfiguration) || !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("Load() error = %v, want wrapped YAML parse error", err)
	}
}

func TestLoad_MissingRequiredKeys(t *testing.T) {
	quietLogs(t)
	path := createTempSettingsFile(t, `
cluster: { host: h }
s3: { log_data: s3://b/log }
`)
	_, err := Load(path)
	assertValidationError(t, err,
		"Settings.Cluster.DBName: is required",
		"Settings.Cluster.User: is required",
		"Settings.Cluster.Password: is required",
		"Settings.Cluster.Port: is required",
		"Settings.S3.SongData: is required",
		"Settings.S3.LogJSONPath: is required",
		"Settings.IAMRole.ARN: is required",
	)
}

// --- ValidateSettings Tests ---

func validSettings() *Settings {
	return &Settings{
		Logging: LoggingConfig{Level: "info"},
		Cluster: ClusterConfig{Host: "h", DBName: "d", User: "u", Password: "p", Port: 5439},
		S3: S3Config{
			LogData:     "s3://b/log",
			SongData:    "s3://b/song",
			LogJSONPath: "s3://b/paths.json",
			Region:      "us-west-2",
		},
		IAMRole:  IAMRoleConfig{ARN: "arn:aws:iam::1:role/r"},
		Pipeline: PipelineConfig{CommitMode: CommitModeStatement},
	}
}

func TestValidateSettings_ValidCases(t *testing.T) {
	quietLogs(t)
	testCases := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{name: "baseline", mutate: func(s *Settings) {}},
		{name: "secret instead of password", mutate: func(s *Settings) {
			s.Cluster.Password = ""
			s.Cluster.PasswordSecretID = "prod/dwh"
		}},
		{name: "phase commit", mutate: func(s *Settings) { s.Pipeline.CommitMode = "PHASE" }},
		{name: "verify-full ssl", mutate: func(s *Settings) { s.Cluster.SSLMode = "verify-full" }},
		{name: "checks", mutate: func(s *Settings) {
			s.Checks = []CheckConfig{
				{Name: "has_plays", Expr: "songplays > 0"},
				{Name: "no_orphans", Expr: "orphan_songplays == 0"},
			}
		}},
		{name: "report", mutate: func(s *Settings) { s.Report.File = "/tmp/run.XLSX" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSettings()
			tc.mutate(s)
			if err := ValidateSettings(s); err != nil {
				t.Errorf("ValidateSettings() error = %v, want nil", err)
			}
		})
	}
}

func TestValidateSettings_InvalidCases(t *testing.T) {
	quietLogs(t)
	testCases := []struct {
		name    string
		mutate  func(s *Settings)
		wantSub string
	}{
		{"bad log level", func(s *Settings) { s.Logging.Level = "loud" }, "Settings.Logging.Level: invalid log level 'loud'"},
		{"port out of range", func(s *Settings) { s.Cluster.Port = 70000 }, "Settings.Cluster.Port: 70000 is out of range"},
		{"bad sslmode", func(s *Settings) { s.Cluster.SSLMode = "always" }, "Settings.Cluster.SSLMode: invalid sslmode 'always'"},
		{"bad timeout", func(s *Settings) { s.Cluster.ConnectTimeout = "soon" }, "Settings.Cluster.ConnectTimeout: invalid duration 'soon'"},
		{"negative timeout", func(s *Settings) { s.Cluster.ConnectTimeout = "-1s" }, "Settings.Cluster.ConnectTimeout: must not be negative"},
		{"non-s3 path", func(s *Settings) { s.S3.LogData = "/local/log" }, "Settings.S3.LogData: '/local/log' must be an s3:// location"},
		{"quoted path", func(s *Settings) { s.S3.SongData = "s3://b/it's" }, "Settings.S3.SongData: must not contain quotes"},
		{"not an arn", func(s *Settings) { s.IAMRole.ARN = "dwhRole" }, "Settings.IAMRole.ARN: 'dwhRole' is not an ARN"},
		{"bad commit mode", func(s *Settings) { s.Pipeline.CommitMode = "batch" }, "Settings.Pipeline.CommitMode: invalid commit mode 'batch'"},
		{"check without name", func(s *Settings) { s.Checks = []CheckConfig{{Expr: "users > 0"}} }, "Settings.Checks[0].Name: is required"},
		{"check without expr", func(s *Settings) { s.Checks = []CheckConfig{{Name: "x"}} }, "Settings.Checks[0].Expr: is required"},
		{"check bad syntax", func(s *Settings) { s.Checks = []CheckConfig{{Name: "x", Expr: "users >"}} }, "Settings.Checks[0].Expr: invalid expression syntax"},
		{"duplicate check", func(s *Settings) {
			s.Checks = []CheckConfig{{Name: "x", Expr: "users > 0"}, {Name: "x", Expr: "songs > 0"}}
		}, "Settings.Checks[1].Name: duplicate check name 'x'"},
		{"report extension", func(s *Settings) { s.Report.File = "run.csv" }, "Settings.Report.File: 'run.csv' must have an .xlsx extension"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSettings()
			tc.mutate(s)
			assertValidationError(t, ValidateSettings(s), tc.wantSub)
		})
	}
}
