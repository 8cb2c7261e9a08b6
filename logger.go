package partstore

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with partstore-specific context.
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
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// WithPartition tags every record with the partition directory.
func (l *Logger) WithPartition(dir string) *Logger {
	return &Logger{Logger: l.Logger.With("partition", dir)}
}

// LogRecovery logs the outcome of the index rebuild at open.
func (l *Logger) LogRecovery(ctx context.Context, segments, keys int, tornBytes uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index rebuild failed",
			"segments", segments,
			"error", err,
		)
		return
	}
	if tornBytes > 0 {
		l.WarnContext(ctx, "index rebuild skipped torn tail",
			"segments", segments,
			"keys", keys,
			"torn_bytes", tornBytes,
		)
		return
	}
	l.InfoContext(ctx, "index rebuild completed",
		"segments", segments,
		"keys", keys,
	)
}

// LogFlush logs a batch flush.
func (l *Logger) LogFlush(ctx context.Context, entries, bytes int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"entries", entries,
			"bytes", bytes,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "flush completed",
		"entries", entries,
		"bytes", bytes,
		"duration", duration,
	)
}

// LogRead logs a failed point read.
func (l *Logger) LogRead(ctx context.Context, key string, segment uint64, err error) {
	if err == nil {
		return
	}
	l.ErrorContext(ctx, "read failed",
		"key", key,
		"segment", segment,
		"error", err,
	)
}

// LogTransfer logs an archive or restore run of a partition.
func (l *Logger) LogTransfer(ctx context.Context, op, partition string, version uint64, segments int, bytes uint64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"partition", partition,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, op+" completed",
		"partition", partition,
		"version", version,
		"segments", segments,
		"bytes", bytes,
		"duration", duration,
	)
}
