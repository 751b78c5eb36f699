package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskDSN hides the password embedded in a URL-style DSN. Plain file paths
// are returned unchanged.
func MaskDSN(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil || parsed.User == nil {
		return dsn
	}
	if _, ok := parsed.User.Password(); !ok {
		return dsn
	}
	parsed.User = url.UserPassword(parsed.User.Username(), RedactedValue)
	// url.String escapes the brackets of the placeholder.
	return strings.Replace(parsed.String(), url.QueryEscape(RedactedValue), RedactedValue, 1)
}

// DSNField returns a slog.Attr carrying dsn with credentials masked.
func DSNField(key, dsn string) slog.Attr {
	return slog.String(key, MaskDSN(dsn))
}
