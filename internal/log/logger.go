// Package log configures the process-wide slog logger and carries a
// request-scoped logger through HTTP middleware.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default slog logger. level is one of debug, info,
// warn, error (case-insensitive, empty means info). When jsonFormat is
// set the handler emits JSON lines, otherwise logfmt-style text.
func Setup(level string, jsonFormat bool) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// ForComponent returns the default logger tagged with a component name.
func ForComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
