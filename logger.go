package kvdir

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with kvdir-specific context.
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
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// WithDirectory tags records with the directory's keyspace prefix.
func (l *Logger) WithDirectory(prefix string) *Logger {
	return &Logger{
		Logger: l.Logger.With("directory", prefix),
	}
}

// WithFile tags records with a file name.
func (l *Logger) WithFile(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("file", name),
	}
}

// LogCreate logs a file creation.
func (l *Logger) LogCreate(ctx context.Context, name string, fileID int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create failed",
			"file", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "file created",
			"file", name,
			"file_id", fileID,
		)
	}
}

// LogDelete logs a file deletion.
func (l *Logger) LogDelete(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"file", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "file deleted",
			"file", name,
		)
	}
}

// LogFlush logs an output flush.
func (l *Logger) LogFlush(ctx context.Context, name string, fileID int64, size int64, chunks int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"file", name,
			"file_id", fileID,
			"size", size,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "file flushed",
			"file", name,
			"file_id", fileID,
			"size", size,
			"chunks", chunks,
		)
	}
}

// LogOpen logs an input open.
func (l *Logger) LogOpen(ctx context.Context, name string, size int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"file", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "file opened",
			"file", name,
			"size", size,
		)
	}
}

// LogCheck logs the outcome of a consistency check.
func (l *Logger) LogCheck(ctx context.Context, report *CheckReport, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "check failed",
			"error", err,
		)
	case !report.OK():
		l.WarnContext(ctx, "check found inconsistencies",
			"files", report.Files,
			"orphan_data", len(report.OrphanData),
			"dangling_entries", len(report.DanglingEntries),
		)
	default:
		l.InfoContext(ctx, "check completed",
			"files", report.Files,
		)
	}
}

// LogExport logs the outcome of a backup export.
func (l *Logger) LogExport(ctx context.Context, target string, files int, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "export failed",
			"target", target,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "export completed",
			"target", target,
			"files", files,
			"bytes", bytes,
		)
	}
}

// LogImport logs the outcome of a backup import.
func (l *Logger) LogImport(ctx context.Context, source string, files int, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "import failed",
			"source", source,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "import completed",
			"source", source,
			"files", files,
			"bytes", bytes,
		)
	}
}
