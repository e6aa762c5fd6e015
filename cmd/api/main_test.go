package main

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRedactURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"with password", "postgres://app:s3cret@db:5432/promotrack", "postgres://app@db:5432/promotrack"},
		{"password only", "redis://:s3cret@cache:6379/0", "redis://redacted@cache:6379/0"},
		{"no credentials", "redis://cache:6379", "redis://cache:6379"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := redactURL(tt.in); got != tt.want {
				t.Errorf("redactURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	dsn := "postgres://app:s3cret@db:5432/promotrack"
	err := errors.New("dial " + dsn + " failed: password=hunter2 rejected")

	got := sanitizeError(err, dsn)
	if strings.Contains(got, "s3cret") || strings.Contains(got, "hunter2") {
		t.Fatalf("secret leaked: %s", got)
	}
	if !strings.Contains(got, "password=redacted") {
		t.Errorf("expected password= to be redacted, got %s", got)
	}
	if sanitizeError(nil) != "" {
		t.Error("expected empty string for nil error")
	}
}
