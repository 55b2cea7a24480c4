package docgo

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with docgo-specific context.
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
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithCollection adds a collection field to the logger.
func (l *Logger) WithCollection(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection", name),
	}
}

// WithDocID adds a document id field to the logger.
func (l *Logger) WithDocID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("doc_id", id),
	}
}

// WithTxnID adds a transaction id field to the logger.
func (l *Logger) WithTxnID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("txn_id", id),
	}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(ctx context.Context, collection, id string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"collection", collection,
			"doc_id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert completed",
			"collection", collection,
			"doc_id", id,
		)
	}
}

// LogUpdate logs an update operation.
func (l *Logger) LogUpdate(ctx context.Context, collection, id string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "update failed",
			"collection", collection,
			"doc_id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "update completed",
			"collection", collection,
			"doc_id", id,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, collection, id string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"collection", collection,
			"doc_id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"collection", collection,
			"doc_id", id,
		)
	}
}

// LogQuery logs a query execution.
func (l *Logger) LogQuery(ctx context.Context, collection string, usedIndex bool, matched int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"collection", collection,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"collection", collection,
			"used_index", usedIndex,
			"matched", matched,
		)
	}
}

// LogTransaction logs a transaction outcome.
func (l *Logger) LogTransaction(ctx context.Context, id string, ops int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "transaction rolled back",
			"txn_id", id,
			"ops", ops,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "transaction committed",
			"txn_id", id,
			"ops", ops,
		)
	}
}

// LogRecovery logs a journal recovery pass on open.
func (l *Logger) LogRecovery(ctx context.Context, rolledBack, cleared int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "journal recovery failed",
			"rolled_back", rolledBack,
			"cleared", cleared,
			"error", err,
		)
	} else if rolledBack > 0 || cleared > 0 {
		l.InfoContext(ctx, "journal recovery completed",
			"rolled_back", rolledBack,
			"cleared", cleared,
		)
	}
}

// LogSemanticWarnings logs unknown types accepted in permissive mode.
func (l *Logger) LogSemanticWarnings(ctx context.Context, collection, id string, types []string) {
	if len(types) == 0 {
		return
	}
	l.WarnContext(ctx, "document declares unknown semantic types",
		"collection", collection,
		"doc_id", id,
		"types", types,
	)
}
