// Package logging provides structured logging configuration using log/slog.
//
// Logs always go to stderr so the stdio worker can keep stdout for protocol
// frames. This package integrates with chi's RequestID middleware to
// propagate request IDs through structured log entries.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// level is shared by every handler built here so SetLevel takes effect
// without rebuilding the logger.
var level = new(slog.LevelVar)

// Setup configures the global slog logger based on level and format,
// writing to stderr.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// Text output is colourised when stderr is a terminal.
func Setup(lvl, format string) {
	slog.SetDefault(New(os.Stderr, lvl, format))
}

// New builds a logger writing to w without touching the global default.
func New(w io.Writer, lvl, format string) *slog.Logger {
	level.Set(parseLevel(lvl))
	return slog.New(newHandler(w, format))
}

// SetLevel changes the minimum level of every logger built by this package.
func SetLevel(lvl string) {
	level.Set(parseLevel(lvl))
}

func newHandler(w io.Writer, format string) slog.Handler {
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""

	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			if isZero(a.Value) {
				return slog.Attr{}
			}
			return a
		},
	})
}

// isZero reports attribute values not worth printing in text logs.
func isZero(v slog.Value) bool {
	switch t := v.Any().(type) {
	case string:
		return t == ""
	case time.Duration:
		return t == 0
	case time.Time:
		return t.IsZero()
	case nil:
		return true
	}
	return false
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
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

// FromContext returns a logger enriched with request context.
//
// When called with a request context that contains a chi RequestID,
// the returned logger automatically includes request_id in all log entries.
//
// Usage:
//
//	func handleRequest(w http.ResponseWriter, r *http.Request) {
//	    logger := logging.FromContext(r.Context())
//	    logger.Info("serving page", "document_id", id)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	docLogger := logging.WithFields(ctx,
//	    "document_id", id,
//	    "source", name,
//	)
//	docLogger.Info("ingest started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
