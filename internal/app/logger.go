package app

import (
	"io"
	"log/slog"
	"strings"

	"lysje/internal/config"
)

// NewLogger returns the JSON logger used by every entrypoint. Each line
// carries the environment and build version.
func NewLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})
	return slog.New(handler).With(
		"service", "reminder-job",
		"env", cfg.Environment,
		"version", cfg.Build.Version,
	)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
