// Package slogger carries structured logging for the biprop CLI on Go's
// slog, with charmbracelet/log rendering to the terminal.
package slogger

import (
	"context"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

type contextKey struct{}

// New creates a logger writing to out (stderr when nil). Verbosity maps
// to levels: 0 errors only, 1 adds info, 2 and up adds debug.
func New(verbosity int, out io.Writer) *slog.Logger {
	if out == nil {
		out = os.Stderr
	}

	level := charmlog.ErrorLevel
	switch {
	case verbosity >= 2:
		level = charmlog.DebugLevel
	case verbosity == 1:
		level = charmlog.InfoLevel
	}

	handler := charmlog.NewWithOptions(out, charmlog.Options{
		Level: level,
		// Tool output owns stdout; the prefix keeps biprop's own
		// diagnostics recognizable next to it.
		Prefix: "biprop",
		// Janitor sweeps and job transitions read back from a debug
		// session need timestamps; default output stays clean.
		ReportTimestamp: verbosity >= 2,
	})

	return slog.New(handler)
}

// WithLogger returns a context carrying the logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the context's logger, or a discarding logger when
// none was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.New(slog.DiscardHandler)
}

// L is shorthand for FromContext.
func L(ctx context.Context) *slog.Logger {
	return FromContext(ctx)
}
