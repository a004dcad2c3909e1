package vinstore

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with vinstore-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithTable adds a table field to the logger.
func (l *Logger) WithTable(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("table", name),
	}
}

// LogWrite logs a write request.
func (l *Logger) LogWrite(ctx context.Context, rows int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "write failed",
			"rows", rows,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "write completed",
			"rows", rows,
			"duration", duration,
		)
	}
}

// LogQuery logs a query of the given kind.
func (l *Logger) LogQuery(ctx context.Context, kind string, results int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"kind", kind,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"kind", kind,
			"results", results,
			"duration", duration,
		)
	}
}

// LogShutdown logs the end of a shutdown.
func (l *Logger) LogShutdown(ctx context.Context, dir string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "shutdown failed",
			"dir", dir,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "shutdown completed",
			"dir", dir,
		)
	}
}
