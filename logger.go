package recordcache

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with cache-specific helpers and consistent
// field names.
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
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithCluster adds a cluster field to the logger.
func (l *Logger) WithCluster(id int32) *Logger {
	return &Logger{
		Logger: l.Logger.With("cluster", id),
	}
}

// LogEviction logs an eviction pass.
func (l *Logger) LogEviction(ctx context.Context, requested, evicted, flushed int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "eviction stopped",
			"requested", requested,
			"evicted", evicted,
			"flushed", flushed,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "eviction completed",
		"requested", requested,
		"evicted", evicted,
		"flushed", flushed,
		"duration", duration,
	)
}

// LogSharedEviction logs an eviction pass restricted to shared records.
func (l *Logger) LogSharedEviction(ctx context.Context, requested, evicted, skipped int) {
	if skipped > 0 {
		l.DebugContext(ctx, "shared eviction skipped dirty records",
			"requested", requested,
			"evicted", evicted,
			"skipped", skipped,
		)
		return
	}
	l.DebugContext(ctx, "shared eviction completed",
		"requested", requested,
		"evicted", evicted,
	)
}

// LogFlush logs a checkpoint of dirty records.
func (l *Logger) LogFlush(ctx context.Context, flushed, remaining int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"flushed", flushed,
			"remaining", remaining,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "flush completed",
		"flushed", flushed,
	)
}

// LogTransitionRejected logs a Put refused because of its requested state.
func (l *Logger) LogTransitionRejected(ctx context.Context, position int64, from, to RecordState) {
	l.WarnContext(ctx, "illegal state transition",
		"position", position,
		"from", from.String(),
		"to", to.String(),
	)
}
