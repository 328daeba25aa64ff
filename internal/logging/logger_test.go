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
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")
	logger.Debug("hidden")
	logger.Info("ingest finished", "rows", 42)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "ingest finished" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["rows"] != float64(42) {
		t.Errorf("rows = %v", entry["rows"])
	}
}

func TestNew_TextDropsEmptyAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug", "text")
	logger.Debug("paged", "status", "", "offset", 10)

	out := buf.String()
	if !strings.Contains(out, "paged") || !strings.Contains(out, "offset=10") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Contains(out, "status=") {
		t.Errorf("empty attribute printed: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("colour codes written to a non-terminal: %q", out)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "error", "json")
	logger.Warn("first")
	SetLevel("warn")
	logger.Warn("second")
	SetLevel("info")

	out := buf.String()
	if strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestFromContext_RequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "json"))
	defer slog.SetDefault(prev)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")
	WithFields(ctx, "document_id", "doc-1").Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-123"`) {
		t.Errorf("missing request_id: %q", out)
	}
	if !strings.Contains(out, `"document_id":"doc-1"`) {
		t.Errorf("missing document_id: %q", out)
	}
}
