package logging

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"warn", "warn", slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"empty defaults to info", "", slog.LevelInfo},
		{"garbage defaults to info", "loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.want {
				t.Fatalf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestWithReturnsUsableLogger(t *testing.T) {
	logger := New("debug").With("component", "test")
	if logger == nil || logger.Logger == nil {
		t.Fatal("expected non-nil logger")
	}
	if !logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Fatal("expected debug level enabled")
	}
}
