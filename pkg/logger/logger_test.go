package logger

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelWarn,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		if err != nil {
			t.Fatalf("ParseLevel(%q): unexpected error %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestGetLoggerInitializesOnce(t *testing.T) {
	defaultLogger = nil
	l := GetLogger()
	if l == nil {
		t.Fatal("expected GetLogger to initialize a default logger")
	}
	if GetLogger() != l {
		t.Fatal("expected GetLogger to return the same instance once initialized")
	}
}
