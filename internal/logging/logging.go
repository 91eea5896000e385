// Package logging provides component-scoped structured loggers on top of log/slog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

// Fields carries structured key/value pairs for a log entry.
type Fields map[string]interface{}

type ctxKey struct{}

// RequestIDKey is the context key under which the HTTP layer stores the request id.
var RequestIDKey = ctxKey{}

var base atomic.Pointer[slog.Logger]

func init() {
	base.Store(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

// Setup configures the process-wide handler. Format is "json" or "text".
func Setup(level, format string) {
	SetOutput(os.Stdout, level, format)
}

// SetOutput is Setup with an explicit writer, used by tests.
func SetOutput(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	l := slog.New(handler)
	base.Store(l)
	slog.SetDefault(l)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// Logger is a named logger for one component of the service.
type Logger struct {
	component string
}

// New returns a logger tagged with the given component name.
func New(component string) *Logger {
	return &Logger{component: component}
}

// With returns a child logger for a sub-component.
func (l *Logger) With(component string) *Logger {
	return &Logger{component: l.component + "." + component}
}

func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log(context.Background(), slog.LevelDebug, msg, fields)
}

func (l *Logger) Info(msg string, fields ...Fields) {
	l.log(context.Background(), slog.LevelInfo, msg, fields)
}

func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log(context.Background(), slog.LevelWarn, msg, fields)
}

func (l *Logger) Error(msg string, fields ...Fields) {
	l.log(context.Background(), slog.LevelError, msg, fields)
}

// Fatal logs at error level and exits the process.
func (l *Logger) Fatal(msg string, fields ...Fields) {
	l.log(context.Background(), slog.LevelError, msg, fields)
	os.Exit(1)
}

// InfoContext logs with the request id from ctx attached.
func (l *Logger) InfoContext(ctx context.Context, msg string, fields ...Fields) {
	l.log(ctx, slog.LevelInfo, msg, fields)
}

// WarnContext logs with the request id from ctx attached.
func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...Fields) {
	l.log(ctx, slog.LevelWarn, msg, fields)
}

// ErrorContext logs with the request id from ctx attached.
func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...Fields) {
	l.log(ctx, slog.LevelError, msg, fields)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, fields []Fields) {
	logger := base.Load()
	if !logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, 4)
	attrs = append(attrs, slog.String("component", l.component))
	if id := RequestID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	for _, f := range fields {
		keys := make([]string, 0, len(f))
		for k := range f {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs = append(attrs, slog.Any(k, f[k]))
		}
	}
	logger.LogAttrs(ctx, level, msg, attrs...)
}

// WithRequestID stores a request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
