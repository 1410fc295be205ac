// Package logging adapts Go's log/slog to the types.Logger interface the
// consumer logs through, and provides the discard logger used when no logger
// option is supplied.
package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/arloliu/multitopic/types"
)

// fatalLevel sits above slog.LevelError so handlers can route fatal output
// separately; slog itself has no fatal level.
const fatalLevel = slog.LevelError + 4

// SlogLogger adapts a slog.Logger to types.Logger.
//
// Levels are checked against the handler before any logging work happens, so
// a disabled Debug costs next to nothing on the receive path.
type SlogLogger struct {
	logger *slog.Logger
}

var _ types.Logger = (*SlogLogger)(nil)

// NewSlog wraps an existing slog.Logger.
func NewSlog(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

// NewSlogText creates a logger with a text handler writing to stderr at the
// given level. Convenient for examples and small tools:
//
//	logger := logging.NewSlogText(slog.LevelDebug)
//	c, err := multitopic.NewConsumer(&cfg, lookup, factory, topics, multitopic.WithLogger(logger))
func NewSlogText(level slog.Level) *SlogLogger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	return &SlogLogger{logger: slog.New(handler)}
}

func (l *SlogLogger) log(level slog.Level, msg string, keysAndValues []any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, msg, keysAndValues...)
}

// Debug logs at DebugLevel with optional key-value pairs.
func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.log(slog.LevelDebug, msg, keysAndValues)
}

// Info logs at InfoLevel with optional key-value pairs.
func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.log(slog.LevelInfo, msg, keysAndValues)
}

// Warn logs at WarnLevel with optional key-value pairs.
func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.log(slog.LevelWarn, msg, keysAndValues)
}

// Error logs at ErrorLevel with optional key-value pairs.
func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.log(slog.LevelError, msg, keysAndValues)
}

// Fatal logs above ErrorLevel and terminates the process.
func (l *SlogLogger) Fatal(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), fatalLevel, msg, keysAndValues...)
	os.Exit(1) //nolint:revive // Fatal terminates by contract
}

// NewNop returns a logger that discards everything. Its Fatal does not
// terminate the process, so it is safe as the default in library code and in
// tests.
func NewNop() types.Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Fatal(string, ...any) {}
