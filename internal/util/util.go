package util

import (
	"os"
	"regexp"
	"strings"
)

// windowsVarRegex matches Windows-style variables (%VAR%).
var windowsVarRegex = regexp.MustCompile(`%([A-Za-z0-9_]+)%`)

// ExpandEnvUniversal expands environment variables ($VAR, ${VAR}, %VAR%).
// Variables that are not found are replaced with an empty string.
func ExpandEnvUniversal(s string) string {
	// Expand Unix-style variables first using os.ExpandEnv.
	unixExpanded := os.ExpandEnv(s)

	return windowsVarRegex.ReplaceAllStringFunc(unixExpanded, func(match string) string {
		varName := match[1 : len(match)-1]
		if value, ok := os.LookupEnv(varName); ok {
			return value
		}
		return ""
	})
}

// CompactSQL collapses all runs of whitespace in a SQL statement into single
// spaces so that multi-line catalog statements echo on one log line.
func CompactSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

// Snippet returns a short, single-line prefix of a SQL statement for error
// messages. Statements longer than 120 runes are truncated with "...".
func Snippet(sql string) string {
	const maxLen = 120
	runes := []rune(CompactSQL(sql))
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return string(runes)
}

// --- Credential Masking ---

const (
	// maskedValue is the standard replacement string for masked data.
	maskedValue = "********"
)

// keywordPasswordRegex finds the password entry of a libpq keyword/value
// connection string. Quoted values may contain spaces and escaped quotes.
var keywordPasswordRegex = regexp.MustCompile(`(?i)(\bpassword\s*=\s*)('(?:[^'\\]|\\.)*'|\S+)`)

// MaskCredentials hides the password in a libpq keyword/value connection
// string (host=h user=u password=secret). Strings without a password
// keyword are returned unchanged.
func MaskCredentials(conn string) string {
	return keywordPasswordRegex.ReplaceAllString(conn, "${1}"+maskedValue)
}
