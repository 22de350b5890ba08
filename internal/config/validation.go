package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"dwh-etl/internal/logging"

	"github.com/Knetic/govaluate"
)

// Define known valid enum values for configuration fields.
var (
	knownLogLevels   = []string{"none", "error", "warn", "warning", "info", "debug"}
	knownCommitModes = []string{CommitModeStatement, CommitModePhase}
	knownSSLModes    = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
)

// isValidEnumValue checks if a value is present in a list of allowed string values (case-insensitive).
func isValidEnumValue(value string, allowedValues []string) bool {
	lowerValue := strings.ToLower(value)
	for _, allowed := range allowedValues {
		if lowerValue == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// ValidateSettings checks every section and reports all problems at once.
// The returned error wraps ErrConfiguration.
func ValidateSettings(s *Settings) error {
	var allErrors []string

	if !isValidEnumValue(s.Logging.Level, knownLogLevels) {
		allErrors = append(allErrors, fmt.Sprintf("- Settings.Logging.Level: invalid log level '%s', must be one of %v", s.Logging.Level, knownLogLevels))
	}

	allErrors = append(allErrors, validateCluster("Settings.Cluster", &s.Cluster)...)
	allErrors = append(allErrors, validateS3("Settings.S3", &s.S3)...)

	if s.IAMRole.ARN == "" {
		allErrors = append(allErrors, "- Settings.IAMRole.ARN: is required")
	} else if !strings.HasPrefix(s.IAMRole.ARN, "arn:") {
		allErrors = append(allErrors, fmt.Sprintf("- Settings.IAMRole.ARN: '%s' is not an ARN", s.IAMRole.ARN))
	}

	if !isValidEnumValue(s.Pipeline.CommitMode, knownCommitModes) {
		allErrors = append(allErrors, fmt.Sprintf("- Settings.Pipeline.CommitMode: invalid commit mode '%s', must be one of %v", s.Pipeline.CommitMode, knownCommitModes))
	}

	allErrors = append(allErrors, validateChecks("Settings.Checks", s.Checks)...)

	if s.Report.File != "" && !strings.EqualFold(filepath.Ext(s.Report.File), ".xlsx") {
		allErrors = append(allErrors, fmt.Sprintf("- Settings.Report.File: '%s' must have an .xlsx extension", s.Report.File))
	}

	if len(allErrors) > 0 {
		return fmt.Errorf("%w: settings validation failed:\n%s", ErrConfiguration, strings.Join(allErrors, "\n"))
	}
	logging.Logf(logging.Debug, "Settings validation successful.")
	return nil
}

func validateCluster(prefix string, c *ClusterConfig) []string {
	var errs []string
	required := []struct {
		field, value string
	}{
		{"Host", c.Host},
		{"DBName", c.DBName},
		{"User", c.User},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Sprintf("- %s.%s: is required", prefix, r.field))
		}
	}
	if c.Password == "" && c.PasswordSecretID == "" {
		errs = append(errs, fmt.Sprintf("- %s.Password: is required (or set password_secret_id)", prefix))
	}
	if c.Password != "" && c.PasswordSecretID != "" {
		logging.Logf(logging.Warning, "Validation: %s.PasswordSecretID is ignored because a password is set", prefix)
	}
	switch {
	case c.Port == 0:
		errs = append(errs, fmt.Sprintf("- %s.Port: is required", prefix))
	case c.Port < 0 || c.Port > 65535:
		errs = append(errs, fmt.Sprintf("- %s.Port: %d is out of range (1-65535)", prefix, c.Port))
	}
	if c.SSLMode != "" && !isValidEnumValue(c.SSLMode, knownSSLModes) {
		errs = append(errs, fmt.Sprintf("- %s.SSLMode: invalid sslmode '%s', must be one of %v", prefix, c.SSLMode, knownSSLModes))
	}
	if c.ConnectTimeout != "" {
		if d, err := time.ParseDuration(c.ConnectTimeout); err != nil {
			errs = append(errs, fmt.Sprintf("- %s.ConnectTimeout: invalid duration '%s': %v", prefix, c.ConnectTimeout, err))
		} else if d < 0 {
			errs = append(errs, fmt.Sprintf("- %s.ConnectTimeout: must not be negative", prefix))
		}
	}
	return errs
}

func validateS3(prefix string, c *S3Config) []string {
	var errs []string
	paths := []struct {
		field, value string
	}{
		{"LogData", c.LogData},
		{"SongData", c.SongData},
		{"LogJSONPath", c.LogJSONPath},
	}
	for _, p := range paths {
		switch {
		case p.value == "":
			errs = append(errs, fmt.Sprintf("- %s.%s: is required", prefix, p.field))
		case !strings.HasPrefix(p.value, "s3://"):
			errs = append(errs, fmt.Sprintf("- %s.%s: '%s' must be an s3:// location", prefix, p.field, p.value))
		case strings.ContainsRune(p.value, '\''):
			errs = append(errs, fmt.Sprintf("- %s.%s: must not contain quotes", prefix, p.field))
		}
	}
	return errs
}

func validateChecks(prefix string, checks []CheckConfig) []string {
	var errs []string
	seen := make(map[string]bool, len(checks))
	for i, c := range checks {
		p := fmt.Sprintf("%s[%d]", prefix, i)
		if c.Name == "" {
			errs = append(errs, fmt.Sprintf("- %s.Name: is required", p))
		} else if seen[c.Name] {
			errs = append(errs, fmt.Sprintf("- %s.Name: duplicate check name '%s'", p, c.Name))
		}
		seen[c.Name] = true
		if c.Expr == "" {
			errs = append(errs, fmt.Sprintf("- %s.Expr: is required", p))
			continue
		}
		if _, err := govaluate.NewEvaluableExpression(c.Expr); err != nil {
			errs = append(errs, fmt.Sprintf("- %s.Expr: invalid expression syntax: %v", p, err))
		}
	}
	return errs
}
