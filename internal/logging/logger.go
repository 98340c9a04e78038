// Package logging wraps a zap.SugaredLogger behind the Logger API every
// other package in this module calls: Info/Warn/Error(msg, key, val, ...).
// Kept as a thin indirection so cmd/tcplb can choose the zap config
// (development vs production encoders) without every caller importing zap
// directly.
package logging

import "go.uber.org/zap"

// Logger provides leveled structured logging with a fixed component field.
type Logger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a production-configured Logger tagged with component.
// Falls back to a no-op logger if the production config fails to build,
// which should not happen with the default encoder.
func NewLogger(component string) *Logger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return &Logger{sugar: base.Sugar().With("component", component)}
}

// NewDevelopment creates a human-readable console Logger for local runs.
func NewDevelopment(component string) *Logger {
	base, err := zap.NewDevelopment()
	if err != nil {
		base = zap.NewNop()
	}
	return &Logger{sugar: base.Sugar().With("component", component)}
}

// Info logs an informational message with key-value pairs.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error message with key-value pairs.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
