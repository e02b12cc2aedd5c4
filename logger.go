package memvec

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with engine-specific helpers.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithIndex adds an index name field to the logger.
func (l *Logger) WithIndex(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", name),
	}
}

// WithLabel adds a label field to the logger (useful for tagging vector
// operations).
func (l *Logger) WithLabel(label uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("label", label),
	}
}

// LogAdd logs a vector add operation.
func (l *Logger) LogAdd(ctx context.Context, name string, label uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add failed",
			"index", name,
			"label", label,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "add completed",
			"index", name,
			"label", label,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, name string, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"index", name,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"index", name,
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogDelete logs a vector delete operation.
func (l *Logger) LogDelete(ctx context.Context, name string, label uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"index", name,
			"label", label,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"index", name,
			"label", label,
		)
	}
}

// LogFlush logs a flush cycle.
func (l *Logger) LogFlush(ctx context.Context, dir string, indices int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"dir", dir,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "flush completed",
			"dir", dir,
			"indices", indices,
		)
	}
}

// LogSnapshot logs a single-index snapshot save or load.
func (l *Logger) LogSnapshot(ctx context.Context, name, filename string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"index", name,
			"filename", filename,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"index", name,
			"filename", filename,
		)
	}
}
