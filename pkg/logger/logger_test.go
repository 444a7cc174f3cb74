package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func capture(t *testing.T, level, format string) *bytes.Buffer {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	SetupWriter(&buf, level, format)
	return &buf
}

func TestContextRequestID(t *testing.T) {
	buf := capture(t, "info", "json")
	ctx := WithRequestID(context.Background(), "req-42")

	slog.InfoContext(ctx, "searched", "hits", 3)
	FromContext(ctx).InfoContext(ctx, "via bound logger")
	slog.Info("no context")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %s", len(lines), buf.String())
	}
	for i, want := range []string{"req-42", "req-42", ""} {
		var rec map[string]any
		if err := json.Unmarshal([]byte(lines[i]), &rec); err != nil {
			t.Fatal(err)
		}
		got, _ := rec["request_id"].(string)
		if got != want {
			t.Errorf("line %d request_id = %q, want %q", i, got, want)
		}
	}
	if strings.Count(lines[1], "request_id") != 1 {
		t.Errorf("bound logger repeated request_id: %s", lines[1])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"debug-2": slog.LevelDebug - 2,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFilters(t *testing.T) {
	buf := capture(t, "warn", "text")
	slog.Info("dropped")
	slog.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("output = %q", buf.String())
	}
}
