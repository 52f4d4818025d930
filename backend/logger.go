package backend

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the package-level structured logger.
// All backend code should use this instead of fmt.Printf.
var Logger = slog.Default()

// ParseLogLevel maps "debug", "info", "warn" or "error" to a slog level.
// Anything else is info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a text or JSON handler on w.
func NewLogger(w io.Writer, logLevel, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(logLevel)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// InitLogger initialises Logger and the slog default logger on stderr, so
// stdout stays free for command output.
// The LOG_LEVEL and LOG_FORMAT environment variables override logLevel and
// the text default.
func InitLogger(logLevel string) {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		logLevel = env
	}

	logger := NewLogger(os.Stderr, logLevel, os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)
	Logger = logger
}
