package app

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the process logger. format is "json" or anything else for
// the text handler.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	options := &slog.HandlerOptions{Level: ParseLogLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

// ParseLogLevel accepts the slog level names plus "warning"; unknown values
// mean info.
func ParseLogLevel(raw string) slog.Level {
	value := strings.TrimSpace(raw)
	if strings.EqualFold(value, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo
	}
	return level
}
