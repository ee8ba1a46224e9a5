package log

import (
	"log/slog"
	"strings"
)

// sensitiveKeyPatterns mark attribute keys whose string values are never
// written. Matching is case-insensitive on a substring of the key.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"cookie",
	"credential",
	"private",
}

const redactedValue = "***REDACTED***"

// IsSensitiveKey reports whether values logged under key are redacted.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range sensitiveKeyPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// redactAttr is used as slog.HandlerOptions.ReplaceAttr. Non-empty strings
// and arbitrary values (byte slices, raw JSON) are replaced; bools and numbers
// pass through so flags like has_access_token stay readable.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if !IsSensitiveKey(a.Key) {
		return a
	}
	switch a.Value.Kind() {
	case slog.KindString:
		if a.Value.String() != "" {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindAny:
		return slog.String(a.Key, redactedValue)
	}
	return a
}
