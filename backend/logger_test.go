package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown_level", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLogLevel(tt.in); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "")

	logger.Info("hidden")
	logger.Warn("shown", "adapter", "ytdlp")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "adapter=ytdlp") {
		t.Errorf("expected text attrs in output: %q", out)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "info", "json").Info("acquisition started", "query", "a b")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if line["query"] != "a b" {
		t.Errorf("query = %v", line["query"])
	}
}

func TestInitLogger_EnvOverride(t *testing.T) {
	saved := Logger
	defer func() {
		Logger = saved
		slog.SetDefault(saved)
	}()

	t.Setenv("LOG_LEVEL", "error")
	InitLogger("debug")
	if Logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("LOG_LEVEL=error should disable warn")
	}
}
