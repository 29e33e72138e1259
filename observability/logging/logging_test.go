package logging

import (
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestMask(t *testing.T) {
	if got := Mask(""); got != "" {
		t.Errorf("empty value must pass through, got %q", got)
	}
	if got := Mask("short"); got != RedactedValue {
		t.Errorf("short value must be fully redacted, got %q", got)
	}
	masked := Mask("AAAA-BBBB-CCCC-1234")
	if !strings.HasPrefix(masked, RedactedValue) || !strings.HasSuffix(masked, "1234") {
		t.Errorf("long value must keep a correlation suffix, got %q", masked)
	}
	if strings.Contains(masked, "AAAA") {
		t.Errorf("masked value leaks prefix: %q", masked)
	}
}
