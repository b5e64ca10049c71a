package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger: JSON in production, text otherwise.
func New(environment string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	opts.Level = slog.LevelDebug
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// Catastrophic is the channel for failures of last-resort procedures. It
// writes to stderr so it survives a broken stdout pipeline.
func Catastrophic() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("channel", "catastrophic")
}
