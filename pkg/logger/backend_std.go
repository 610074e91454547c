package logger

import (
	"io"
	"log/slog"
)

func newStdHandler(w io.Writer, cfg Config) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     cfg.effectiveLevel(),
		AddSource: cfg.AddSource,
	})
}
