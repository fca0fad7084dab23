// Package logging provides structured logging for the arcset processes.
//
// Logs go to stderr (or a file) through log/slog; the solution lines that
// make up the console contract are written to stdout by the supervisor and
// generator packages and never pass through here.
//
// Example usage:
//
//	logger, err := logging.NewSupervisorLogger(cfg.Logging)
//	logger.Info("Channel created", "name", "arcset", "capacity", 10)
//
//	// Tag every record of one run
//	ctx = logging.WithCorrelationID(ctx, runID)
//	logger.InfoContext(ctx, "Improvement", "edges", 3)
package logging

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bebsworthy/arcset/internal/config"
	"github.com/bebsworthy/arcset/internal/errors"
)

// CorrelationIDKey is the context key for correlation IDs
type CorrelationIDKey struct{}

// Logger wraps slog.Logger with arcset-specific functionality
type Logger struct {
	*slog.Logger
	config config.LoggingConfig
	writer io.Writer
}

// NewLogger creates a new structured logger with the given configuration
func NewLogger(cfg config.LoggingConfig) (*Logger, error) {
	writer, err := createLogWriter(cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create log writer: %w", err)
	}

	logger, err := NewLoggerWithWriter(cfg, writer)
	if err != nil {
		if closer, ok := writer.(io.Closer); ok && writer != os.Stderr {
			closer.Close()
		}
		return nil, err
	}
	return logger, nil
}

// NewLoggerWithWriter creates a logger that writes to w instead of the
// configured output
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) (*Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.Verbose,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	return &Logger{
		Logger: slog.New(&CorrelationHandler{Handler: handler}),
		config: cfg,
		writer: w,
	}, nil
}

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

// createLogWriter creates the appropriate writer for log output
func createLogWriter(outputFile string) (io.Writer, error) {
	if outputFile == "" {
		return os.Stderr, nil
	}

	dir := filepath.Dir(outputFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}

	file, err := os.OpenFile(outputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %q: %w", outputFile, err)
	}

	return file, nil
}

// CorrelationHandler wraps another handler to add correlation ID support
type CorrelationHandler struct {
	slog.Handler
}

// Handle processes log records and adds correlation ID if present in context
func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		r.AddAttrs(slog.String("correlation_id", correlationID))
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs returns a new handler with the given attributes
func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup returns a new handler with the given group
func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{Handler: h.Handler.WithGroup(name)}
}

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey{}, correlationID)
}

// GetCorrelationID retrieves the correlation ID from the context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Component-specific logger creation

// NewSupervisorLogger creates a logger for the aggregating process
func NewSupervisorLogger(cfg config.LoggingConfig) (*Logger, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	logger.Logger = logger.Logger.With(
		slog.String("component", "supervisor"),
		slog.String("service", "arcset"),
		slog.Int("pid", os.Getpid()),
	)

	return logger, nil
}

// NewGeneratorLogger creates a logger for one worker process
func NewGeneratorLogger(cfg config.LoggingConfig, instanceID string) (*Logger, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	logger.Logger = logger.Logger.With(
		slog.String("component", "generator"),
		slog.String("service", "arcset"),
		slog.Int("pid", os.Getpid()),
		slog.String("instance", instanceID),
	)

	return logger, nil
}

// NewCleanupLogger creates a logger for the stale resource cleanup command
func NewCleanupLogger(cfg config.LoggingConfig) (*Logger, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	logger.Logger = logger.Logger.With(
		slog.String("component", "cleanup"),
		slog.String("service", "arcset"),
	)

	return logger, nil
}

// LogTiming logs the duration of an operation
func (l *Logger) LogTiming(ctx context.Context, operation string, start time.Time, attrs ...slog.Attr) {
	allAttrs := []slog.Attr{
		slog.String("operation", operation),
		slog.Duration("duration", time.Since(start)),
	}
	allAttrs = append(allAttrs, attrs...)

	l.LogAttrs(ctx, slog.LevelDebug, "Operation completed", allAttrs...)
}

// LogError logs an error, expanding arcset error details when present
func (l *Logger) LogError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	allAttrs := []slog.Attr{
		slog.String("error", err.Error()),
	}

	var arcErr *errors.ArcsetError
	if goerrors.As(err, &arcErr) {
		allAttrs = append(allAttrs, arcErr.LogAttrs()...)
	} else {
		allAttrs = append(allAttrs, slog.String("error_type", fmt.Sprintf("%T", err)))
	}
	allAttrs = append(allAttrs, attrs...)

	l.LogAttrs(ctx, slog.LevelError, msg, allAttrs...)
}

// Close closes any file resources used by the logger
func (l *Logger) Close() error {
	if l.writer == os.Stderr || l.writer == os.Stdout {
		return nil
	}
	if closer, ok := l.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Global logger management

var defaultLogger *Logger

// SetDefault sets the default logger instance
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the default logger instance
func Default() *Logger {
	if defaultLogger == nil {
		cfg := config.LoggingConfig{
			Level:  "info",
			Format: "text",
		}
		logger, _ := NewLogger(cfg)
		return logger
	}
	return defaultLogger
}

// Discard returns a logger that drops every record
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		writer: io.Discard,
	}
}
