package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

// Attribute keys shared by every module
const (
	TraceIDKey = "trace_id"
	SpanIDKey  = "span_id"
	ModuleKey  = "module"
)

// programLevel allows dynamic adjustment of logging level
var programLevel = new(slog.LevelVar)

// sensitiveKeys never reach the output, whatever their value
var sensitiveKeys = map[string]bool{
	"password":      true,
	"secret":        true,
	"client_secret": true,
	"token":         true,
	"access_token":  true,
	"id_token":      true,
	"authorization": true,
	"cookie":        true,
	"code":          true,
}

// Logger wraps slog.Logger with module and tracing helpers
type Logger struct {
	*slog.Logger
}

func filterAttr(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.Attr{}
	}
	return a
}

// NewLogger creates the process logger writing to stdout and installs it as
// the slog default.
func NewLogger(level string) (*Logger, error) {
	logger, err := NewLoggerTo(os.Stdout, level)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger.Logger)
	return logger, nil
}

// NewLoggerTo creates a logger writing to w
func NewLoggerTo(w io.Writer, level string) (*Logger, error) {
	if err := SetLogLevel(level); err != nil {
		return nil, err
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:       programLevel,
		TimeFormat:  time.RFC3339,
		ReplaceAttr: filterAttr,
		NoColor:     w != os.Stdout,
	})

	return &Logger{Logger: slog.New(handler)}, nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: slog.New(tint.NewHandler(io.Discard, &tint.Options{Level: slog.LevelError}))}
}

// SetLogLevel sets the logging level
func SetLogLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		programLevel.Set(slog.LevelDebug)
	case "info", "":
		programLevel.Set(slog.LevelInfo)
	case "warn", "warning":
		programLevel.Set(slog.LevelWarn)
	case "error":
		programLevel.Set(slog.LevelError)
	default:
		return fmt.Errorf("invalid log level: '%s'", level)
	}
	return nil
}

// GetLogLevel returns the current logging level
func GetLogLevel() slog.Level {
	return programLevel.Level()
}

// With creates a new logger with the provided attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithModule creates a new logger with the module attribute
func (l *Logger) WithModule(module string) *Logger {
	return l.With(ModuleKey, module)
}

// WithTracing adds trace and span IDs to the logger
func (l *Logger) WithTracing(traceID, spanID string) *Logger {
	return l.With(TraceIDKey, traceID, SpanIDKey, spanID)
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.NewString()
}

// NewSpanID generates a new span ID
func NewSpanID() string {
	return uuid.NewString()
}

type contextKey string

const (
	ctxLoggerKey  contextKey = "logger"
	ctxTraceIDKey contextKey = "traceID"
)

// ContextWithLogger adds a logger to a context
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey, logger)
}

// LoggerFromContext extracts a logger from a context, nil when there is none
func LoggerFromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(ctxLoggerKey).(*Logger); ok {
		return logger
	}
	return nil
}

// FromContext returns the request logger, or fallback outside a request
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return fallback
}

// ContextWithTraceID adds a trace ID to context
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxTraceIDKey, traceID)
}

// GetTraceIDFromContext retrieves the trace ID from context
func GetTraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ctxTraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// Err returns a formatted error attribute for logging
func Err(err error) slog.Attr {
	return tint.Err(err)
}
