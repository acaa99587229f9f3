// Package logger provides structured, level-gated logging for the service.
//
// Each entry is written as a single line with fixed-width columns:
//
//	2006-01-02 15:04:05.000 | MODULE       | ACTION               | LEVEL | message
//
// Levels (lowest to highest): debug, info, warn, error.
// Entries below the configured minimum level are silently dropped.
// Callers never pass raw PII as a message; log counts, categories and
// redacted text instead.
//
// Usage:
//
//	log := logger.New("PIPELINE", cfg.LogLevel)
//	log.Info("scan", "2 detections [email phone]")
//	log.Errorf("journal_append", "session %s: %v", id, err)
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Level represents a log severity.
type Level int32

// Log severity constants, ordered lowest to highest.
const (
	LevelDebug Level = iota // fine-grained diagnostic output
	LevelInfo               // normal operational messages
	LevelWarn               // unexpected but recoverable conditions
	LevelError              // failures requiring attention
)

var levelLabels = [...]string{"DEBUG", "INFO ", "WARN ", "ERROR"}

// String returns the lowercase level name.
func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "unknown"
	}
	return strings.ToLower(strings.TrimSpace(levelLabels[l]))
}

// Logger writes structured log lines for a single module.
// It is safe for concurrent use; the level may be changed at runtime.
type Logger struct {
	module string
	level  atomic.Int32
	out    *log.Logger
}

// New creates a Logger for the given module writing to stderr, gated at the
// given level string. Unrecognized level strings default to "info".
func New(module, levelStr string) *Logger {
	return NewWithWriter(module, levelStr, os.Stderr)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(module, levelStr string, w io.Writer) *Logger {
	l := &Logger{
		module: strings.ToUpper(module),
		// No prefix or flags; write supplies the full line.
		out: log.New(w, "", 0),
	}
	l.level.Store(int32(ParseLevel(levelStr)))
	return l
}

// Discard returns a Logger that drops everything. Useful in tests.
func Discard() *Logger {
	return NewWithWriter("discard", "error", io.Discard)
}

// Module returns a Logger for another module sharing this logger's
// destination and level.
func (l *Logger) Module(module string) *Logger {
	n := &Logger{module: strings.ToUpper(module), out: l.out}
	n.level.Store(l.level.Load())
	return n
}

// SetLevel changes the minimum log level at runtime.
func (l *Logger) SetLevel(levelStr string) {
	l.level.Store(int32(ParseLevel(levelStr)))
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return int32(level) >= l.level.Load()
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(action, msg string) { l.write(LevelDebug, action, msg) }

// Info logs at INFO level.
func (l *Logger) Info(action, msg string) { l.write(LevelInfo, action, msg) }

// Warn logs at WARN level.
func (l *Logger) Warn(action, msg string) { l.write(LevelWarn, action, msg) }

// Error logs at ERROR level.
func (l *Logger) Error(action, msg string) { l.write(LevelError, action, msg) }

// Debugf logs a formatted message at DEBUG level.
// Formatting is skipped when debug output is disabled.
func (l *Logger) Debugf(action, format string, args ...any) {
	if !l.Enabled(LevelDebug) {
		return
	}
	l.Debug(action, fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(action, format string, args ...any) {
	l.Info(action, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(action, format string, args ...any) {
	l.Warn(action, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(action, format string, args ...any) {
	l.Error(action, fmt.Sprintf(format, args...))
}

// Fatal logs at ERROR level and then calls os.Exit(1).
func (l *Logger) Fatal(action, msg string) {
	l.Error(action, msg)
	os.Exit(1)
}

// Fatalf logs a formatted message at ERROR level and then calls os.Exit(1).
func (l *Logger) Fatalf(action, format string, args ...any) {
	l.Fatal(action, fmt.Sprintf(format, args...))
}

// write emits one log line if level is enabled.
func (l *Logger) write(level Level, action, msg string) {
	if !l.Enabled(level) {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	l.out.Printf("%s | %-12s | %-22s | %s | %s", ts, l.module, action, levelLabels[level], msg)
}

// ParseLevel converts a string to a Level, defaulting to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
