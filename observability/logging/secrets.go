package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive material in log output.
const RedactedValue = "[REDACTED]"

// Mask hides a credential while keeping a short suffix for correlation.
// Values too short to safely truncate are fully redacted, empty values pass
// through so absent config stays visibly absent.
func Mask(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value
	}
	if len(trimmed) <= 8 {
		return RedactedValue
	}
	return RedactedValue + trimmed[len(trimmed)-4:]
}

// Secret builds a slog attribute carrying the masked form of a credential.
// Use this for bearer tokens, bot tokens, and key material that must never
// reach log storage verbatim.
func Secret(key, value string) slog.Attr {
	return slog.String(key, Mask(value))
}
