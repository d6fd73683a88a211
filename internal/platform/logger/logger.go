package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	AccountIDKey contextKey = "account_id"
	ServiceKey   contextKey = "service"
)

var defaultLogger = newLogger(os.Stdout, os.Getenv("LOG_LEVEL"))

func newLogger(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if level == "debug" {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetOutput: テストやCLIで出力先を差し替える
func SetOutput(w io.Writer, level string) {
	defaultLogger = newLogger(w, level)
}

func Default() *slog.Logger {
	return defaultLogger
}

func WithContext(ctx context.Context) *slog.Logger {
	l := defaultLogger
	if ctx == nil {
		return l
	}
	if v := ctx.Value(RequestIDKey); v != nil {
		l = l.With("request_id", v)
	}
	if v := ctx.Value(AccountIDKey); v != nil {
		l = l.With("account_id", v)
	}
	if v := ctx.Value(ServiceKey); v != nil {
		l = l.With("service", v)
	}
	return l
}

func Info(msg string, args ...any)  { defaultLogger.Info(msg, args...) }
func Warn(msg string, args ...any)  { defaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }
func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }

func InfoContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}
