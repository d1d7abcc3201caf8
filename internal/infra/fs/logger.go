package fs

import (
	"fmt"
	"os"
)

// Logger interface for the fs layer. The CLI installs its own logger at
// startup; library code falls back to plain stderr output.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// defaultLogger writes directly to stderr
type defaultLogger struct{}

func (l *defaultLogger) Debug(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "DEBUG: "+format+"\n", args...)
}

func (l *defaultLogger) Info(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "INFO: "+format+"\n", args...)
}

func (l *defaultLogger) Warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "WARN: "+format+"\n", args...)
}

func (l *defaultLogger) Error(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
}

// globalLogger is the logger instance
var globalLogger Logger = &defaultLogger{}

// SetLogger sets the global logger
func SetLogger(logger Logger) {
	if logger != nil {
		globalLogger = logger
	}
}

// GetLogger returns the current logger
func GetLogger() Logger {
	return globalLogger
}

// leveledLogger filters below the configured level
type leveledLogger struct {
	inner Logger
	level int
}

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// NewLeveledLogger wraps the default stderr logger with a minimum level.
// Unknown level strings fall back to info.
func NewLeveledLogger(level string) Logger {
	l := levelInfo
	switch level {
	case "debug":
		l = levelDebug
	case "info":
		l = levelInfo
	case "warn":
		l = levelWarn
	case "error":
		l = levelError
	}
	return &leveledLogger{inner: &defaultLogger{}, level: l}
}

func (l *leveledLogger) Debug(format string, args ...interface{}) {
	if l.level <= levelDebug {
		l.inner.Debug(format, args...)
	}
}

func (l *leveledLogger) Info(format string, args ...interface{}) {
	if l.level <= levelInfo {
		l.inner.Info(format, args...)
	}
}

func (l *leveledLogger) Warn(format string, args ...interface{}) {
	if l.level <= levelWarn {
		l.inner.Warn(format, args...)
	}
}

func (l *leveledLogger) Error(format string, args ...interface{}) {
	if l.level <= levelError {
		l.inner.Error(format, args...)
	}
}
