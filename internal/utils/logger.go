// internal/utils/logger.go
package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
	FATAL
)

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARNING:
		return slog.LevelWarn
	case ERROR, FATAL:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel maps a config string to a level, defaulting to INFO.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug", "DEBUG":
		return DEBUG
	case "warn", "warning", "WARN", "WARNING":
		return WARNING
	case "error", "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger wraps a slog.Logger with the field-map API used across services.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	level   *slog.LevelVar
	slogger *slog.Logger
	module  string
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// NewLogger creates a text logger writing to w. Tests pass io.Discard or a buffer.
func NewLogger(w io.Writer, level LogLevel) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level.slogLevel())
	return &Logger{
		level:   lv,
		slogger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})),
	}
}

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		globalLogger = NewLogger(os.Stdout, INFO)
	})
	return globalLogger
}

// InitLogger points the global logger at stdout plus an append-only log file.
func InitLogger(logFile string, level LogLevel) error {
	logger := GetLogger()

	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if logger.file != nil {
		logger.file.Close()
	}
	logger.file = file
	logger.level.Set(level.slogLevel())
	logger.slogger = slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, file),
		&slog.HandlerOptions{Level: logger.level}))
	return nil
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// SetLogLevel sets the minimum level for logging
func (l *Logger) SetLogLevel(level LogLevel) {
	l.level.Set(level.slogLevel())
}

// Module returns a child logger tagged with module=<name>.
func (l *Logger) Module(name string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	module := name
	if l.module != "" {
		module = l.module + "." + name
	}
	return &Logger{
		level:   l.level,
		slogger: l.slogger.With("module", module),
		module:  module,
	}
}

func (l *Logger) log(level LogLevel, message string, fields map[string]interface{}) {
	l.mu.Lock()
	sl := l.slogger
	l.mu.Unlock()

	// Sorted so that output is stable across runs.
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		attrs = append(attrs, k, fields[k])
	}

	sl.Log(context.Background(), level.slogLevel(), message, attrs...)

	if level == FATAL {
		os.Exit(1)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.log(DEBUG, message, fields)
}

// Info logs an info message
func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.log(INFO, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.log(WARNING, message, fields)
}

// Error logs an error message
func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.log(ERROR, message, fields)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, fields map[string]interface{}) {
	l.log(FATAL, message, fields)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...), nil)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WARNING, fmt.Sprintf(format, args...), nil)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...), nil)
}
