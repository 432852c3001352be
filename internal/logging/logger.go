// Package logging provides structured logging configuration using log/slog.
//
// This package integrates with chi's RequestID middleware to propagate
// request IDs through structured log entries, so every line logged while
// serving an export carries the id of the request that asked for it.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup builds the process logger from LOG_LEVEL/LOG_FORMAT values, writes
// it to stdout and installs it as the slog default.
func Setup(level, format string) *slog.Logger {
	logger := New(os.Stdout, level, format)
	slog.SetDefault(logger)
	return logger
}

// New returns a text or JSON logger writing to w. Unknown formats fall back
// to text.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog.Level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// FromContext returns the default logger tagged with the request id in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	return With(ctx, slog.Default())
}

// With tags base with the chi request id carried by ctx, if any.
func With(ctx context.Context, base *slog.Logger) *slog.Logger {
	if id := middleware.GetReqID(ctx); id != "" {
		return base.With("request_id", id)
	}
	return base
}
