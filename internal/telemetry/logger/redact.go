// Package logger provides structured logging for spoolmesh.
package logger

import (
	"log/slog"
	"strings"
)

// Sensitive key patterns that should be redacted. Spool payloads are
// anonymous user messages and must never reach the logs; the rest
// covers the usual secret material.
var sensitiveKeyPatterns = []string{
	"payload",
	"passphrase",
	"password",
	"secret",
	"credential",
	"encryption_key",
	"private_key",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive checks if an attribute contains sensitive data
// and redacts it if necessary.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		if IsSensitiveKey(a.Key) && a.Value.String() != "" {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	default:
		// Payload bytes logged as []byte or any other kind still get
		// blanked when the key is sensitive.
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	}
	return a
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
