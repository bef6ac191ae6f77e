package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides leveled logging with verbose mode support
type Logger struct {
	verbose bool
	out     *log.Logger
	mu      sync.RWMutex
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		globalLogger = &Logger{
			out: log.New(os.Stderr, "", 0),
		}
	})
	return globalLogger
}

// SetVerbose enables or disables verbose logging
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
	if verbose {
		l.out.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	} else {
		l.out.SetFlags(0)
	}
}

// IsVerbose returns whether verbose logging is enabled
func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// SetOutput redirects all log output
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.SetOutput(w)
}

func (l *Logger) printf(level, format string, args ...any) {
	l.mu.RLock()
	out := l.out
	l.mu.RUnlock()
	out.Printf(level+" "+format, args...)
}

// Debug logs a debug message (only when verbose is enabled)
func (l *Logger) Debug(format string, args ...any) {
	if l.IsVerbose() {
		l.printf("[DEBUG]", format, args...)
	}
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...any) {
	l.printf("[INFO]", format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...any) {
	l.printf("[WARN]", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	l.printf("[ERROR]", format, args...)
}

// Debugf is a convenience function for debug logging
func Debugf(format string, args ...any) {
	GetLogger().Debug(format, args...)
}

// Infof is a convenience function for info logging
func Infof(format string, args ...any) {
	GetLogger().Info(format, args...)
}

// Warnf is a convenience function for warning logging
func Warnf(format string, args ...any) {
	GetLogger().Warn(format, args...)
}

// Errorf is a convenience function for error logging
func Errorf(format string, args ...any) {
	GetLogger().Error(format, args...)
}

// SetVerboseMode is a convenience function to set global verbose mode
func SetVerboseMode(verbose bool) {
	GetLogger().SetVerbose(verbose)
}

// LogOperation logs the start and end of an operation
func LogOperation(operation string, fn func() error) error {
	logger := GetLogger()
	logger.Debug("Starting operation: %s", operation)

	err := fn()

	if err != nil {
		logger.Debug("Operation failed: %s - %v", operation, err)
	} else {
		logger.Debug("Operation completed: %s", operation)
	}

	return err
}

// BackgroundLogger writes auto-sync logs to a size-rotated file
type BackgroundLogger struct {
	file *lumberjack.Logger
	path string
}

// NewBackgroundLogger opens a rotating log at path.
// An empty path means $XDG_STATE_HOME/gomarks/sync.log (or ~/.local/state/gomarks/sync.log).
func NewBackgroundLogger(path string) (*BackgroundLogger, error) {
	if path == "" {
		var err error
		if path, err = defaultBackgroundLogPath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &BackgroundLogger{
		file: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    5, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		},
		path: path,
	}, nil
}

func defaultBackgroundLogPath() (string, error) {
	dir, err := AppDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sync.log"), nil
}

// Writer returns the rotating file as an io.Writer
func (b *BackgroundLogger) Writer() io.Writer {
	return b.file
}

// Path returns the active log file path
func (b *BackgroundLogger) Path() string {
	return b.path
}

// Close flushes and closes the log file
func (b *BackgroundLogger) Close() error {
	return b.file.Close()
}
