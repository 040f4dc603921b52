package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures the process logger.
type Options struct {
	// Level is the minimum level ("debug", "info", "warn", "error").
	Level string

	// Format selects the handler ("json" or "text").
	Format string

	// RedactSecrets wraps the handler with credential redaction.
	RedactSecrets bool

	// Output overrides the destination. Default: os.Stderr
	Output io.Writer
}

// New builds the process logger. With redaction enabled every attribute
// value passes through the credential redactor before the handler sees
// it, so an accidentally logged API key cannot reach the output.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	if opts.RedactSecrets {
		handler = NewRedactingHandler(handler)
	}

	return slog.New(handler)
}

// parseLevel maps a level name to its slog level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
