package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("kept", "format", "pdf")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "kept" || entry["format"] != "pdf" {
		t.Errorf("entry = %v", entry)
	}
}

func TestWith_RequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, "info", "text")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	With(ctx, base).Info("export completed")

	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("log = %q", buf.String())
	}

	buf.Reset()
	With(context.Background(), base).Info("no request")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("log = %q", buf.String())
	}
}
