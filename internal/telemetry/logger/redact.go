package logger

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Sensitive key patterns that should be redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"encryption_key",
	"credential",
	"bearer",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive rewrites an attribute so it is safe to log:
// secrets are replaced, tokens are masked and byte payloads are elided.
func redactSensitive(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()

	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
		if isTokenKey(a.Key) {
			return slog.String(a.Key, MaskToken(s))
		}

	case slog.KindInt64:
		if isTokenKey(a.Key) {
			return slog.String(a.Key, MaskToken(strconv.FormatInt(v.Int64(), 10)))
		}

	case slog.KindAny:
		if b, ok := v.Any().([]byte); ok {
			if IsSensitiveKey(a.Key) {
				return slog.String(a.Key, redactedValue)
			}
			return slog.String(a.Key, fmt.Sprintf("<%d bytes>", len(b)))
		}

	case slog.KindGroup:
		attrs := v.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// MaskToken masks the decimal form of a state token, keeping the first
// and last three digits. Values that are already masked pass through.
func MaskToken(s string) string {
	if strings.Contains(s, "...") || s == "***" {
		return s
	}
	if len(s) <= 6 {
		return "***"
	}
	return s[:3] + "..." + s[len(s)-3:]
}

// RedactString returns redactedValue for any non-empty value.
// Use this when a secret must be mentioned before logging.
func RedactString(value string) string {
	if value == "" {
		return ""
	}
	return redactedValue
}

// IsSensitiveKey checks if a key name suggests secret content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

func isTokenKey(key string) bool {
	return strings.EqualFold(key, "token")
}
