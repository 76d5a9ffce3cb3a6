package modrefresh

import "log/slog"

// Logger defines the interface for coordinator logging.
// It uses structured key-value pairs so callers can plug in slog, zap,
// logrus or any other structured logger:
//
//	logger.Info("Refreshing modules", "count", 2, "modules", []string{"a", "b"})
//
// Every component in this module (coordinator, engine, admin server,
// config watcher) accepts a Logger through a WithLogger option.
type Logger interface {
	// Info logs an informational message, such as a batch being refreshed.
	Info(msg string, args ...any)

	// Error logs an error that did not stop the current cycle.
	Error(msg string, args ...any)

	// Warn logs an unusual condition, such as a lost completion event.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostic information like per-module resolution.
	Debug(msg string, args ...any)
}

// NewSlogLogger adapts a *slog.Logger to the Logger interface.
// A nil logger falls back to slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{logger: l}
}

type slogLogger struct {
	logger *slog.Logger
}

func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}
