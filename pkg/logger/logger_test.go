package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{" warning ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCronLoggerError(t *testing.T) {
	var buf bytes.Buffer
	l := &CronLogger{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	l.Error(errors.New("disk full"), "job failed", "job", "prune")

	out := buf.String()
	if !strings.Contains(out, "job failed") || !strings.Contains(out, "error=\"disk full\"") {
		t.Errorf("unexpected log output: %s", out)
	}
	if !strings.Contains(out, "job=prune") {
		t.Errorf("expected key/value pairs to be kept: %s", out)
	}
}
