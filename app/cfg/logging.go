package cfg

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger creates a text slog.Logger writing to w. debug overrides level.
func NewLogger(w io.Writer, level string, debug bool) *slog.Logger {
	lvl := levelFromString(level)
	if debug {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
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
