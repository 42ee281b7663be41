package logging

import (
	"log/slog"
	"os"
)

// NewLogger creates a structured logger appropriate for the environment.
// Production uses JSON at info, anything else uses text at debug. A non-nil
// level overrides the environment default.
func NewLogger(env string, level *slog.Level) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "production" {
		if level != nil {
			opts.Level = *level
		}
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		if level != nil {
			opts.Level = *level
		}
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
