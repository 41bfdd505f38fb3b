package log

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"

	"github.com/opencall/opencall/internal/errors"
)

// Logger provides structured logging with slog
type Logger struct {
	slog   *slog.Logger
	config Config
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	return &Logger{
		slog:   slog.New(newHandler(config)),
		config: config,
	}
}

func newHandler(config Config) slog.Handler {
	if config.Format == FormatJSON {
		return slog.NewJSONHandler(config.Output.Writer(), &slog.HandlerOptions{
			Level:     config.Level.ToSlogLevel(),
			AddSource: config.AddSource,
		})
	}

	return tint.NewHandler(config.Output.Writer(), &tint.Options{
		Level:      config.Level.ToSlogLevel(),
		AddSource:  config.AddSource,
		TimeFormat: time.Kitchen,
		NoColor:    config.NoColor || !config.Output.IsTerminal(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" && a.Value.Kind() == slog.KindAny {
				if err, ok := a.Value.Any().(error); ok {
					return tint.Err(err)
				}
			}
			return a
		},
	})
}

// Default creates a logger with default configuration
func Default() *Logger {
	return New(DefaultConfig())
}

// Discard returns a logger that drops everything, for tests
func Discard() *Logger {
	return New(Config{Level: LevelError, Format: FormatJSON, Output: NewOutput(io.Discard)})
}

// With returns a new Logger with the given attributes added to all log entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
	}
}

// WithGroup returns a new Logger with a group name that prefixes all attributes
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		slog:   l.slog.WithGroup(name),
		config: l.config,
	}
}

// WithError adds error details to the logger.
// Coded errors contribute error_code; API errors also contribute kind and status.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With(errorArgs(err)...)
}

func errorArgs(err error) []any {
	if apiErr, ok := errors.AsAPIError(err); ok {
		args := []any{
			"error", apiErr.Message,
			"error_code", string(apiErr.Code()),
			"kind", apiErr.Kind.String(),
			"status", apiErr.Status,
		}
		if len(apiErr.Fields) > 0 {
			args = append(args, "fields", apiErr.Fields)
		}
		if apiErr.Cause != nil {
			args = append(args, "cause", apiErr.Cause.Error())
		}
		return args
	}

	if ocErr, ok := err.(*errors.OpenCallError); ok {
		args := []any{
			"error", ocErr.Message,
			"error_code", string(ocErr.Code),
		}
		if len(ocErr.Suggestions) > 0 {
			args = append(args, "suggestions", ocErr.Suggestions)
		}
		if ocErr.Cause != nil {
			args = append(args, "cause", ocErr.Cause.Error())
		}
		return args
	}

	return []any{"error", err.Error()}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// DebugContext logs a debug message with context
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slog.DebugContext(ctx, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// InfoContext logs an info message with context
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// WarnContext logs a warning message with context
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slog.WarnContext(ctx, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// ErrorContext logs an error message with context
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slog.ErrorContext(ctx, msg, args...)
}

// LogErrorContext logs err with its full structured details
func (l *Logger) LogErrorContext(ctx context.Context, msg string, err error) {
	if err == nil {
		return
	}
	l.slog.ErrorContext(ctx, msg, errorArgs(err)...)
}

// Enabled returns whether the logger is enabled for the given level
func (l *Logger) Enabled(ctx context.Context, level Level) bool {
	return l.slog.Enabled(ctx, level.ToSlogLevel())
}

// Handler returns the underlying slog.Handler
func (l *Logger) Handler() slog.Handler {
	return l.slog.Handler()
}

// OrDefault returns l, or the process default when l is nil
func OrDefault(l *Logger) *Logger {
	if l == nil {
		return DefaultLogger()
	}
	return l
}
