package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := levelFromString(tt.in); got != tt.want {
			t.Errorf("levelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRedactingHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, nil)
	h := NewRedactingHandler(inner, []string{"password"})
	log := slog.New(h)

	log.Info("connecting", "password", "supersecret", "host", "db1")

	out := buf.String()
	if strings.Contains(out, "supersecret") {
		t.Error("password value leaked into log output")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("expected redaction marker in output")
	}
	if !strings.Contains(out, "db1") {
		t.Error("non-sensitive attribute should pass through")
	}
}

func TestMultiHandler(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)

	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("multi handler should be enabled when any child is")
	}

	log := slog.New(h)
	log.Info("hello")

	if !strings.Contains(a.String(), "hello") {
		t.Error("info handler should receive the record")
	}
	if strings.Contains(b.String(), "hello") {
		t.Error("error-level handler should not receive info records")
	}
}

func TestNewAndClose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := New(Options{
		Env:          "dev",
		ConsoleLevel: "info",
		FileLevel:    "debug",
		File:         dir + "/app.log",
		App:          "jobkeeper",
	})
	l.Info("started")

	if err := Close(l); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	// Closing twice is a no-op.
	if err := Close(l); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
}
