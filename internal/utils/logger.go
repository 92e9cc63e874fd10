package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Logger provides leveled logging with verbose mode support.
type Logger struct {
	verbose bool
	out     io.Writer
	mu      sync.RWMutex
}

var (
	loggerInstance *Logger
	once           sync.Once
)

// GetLogger returns the singleton logger instance. Output goes to
// stderr so stdout stays clean for command output.
func GetLogger() *Logger {
	once.Do(func() {
		loggerInstance = &Logger{out: os.Stderr}
	})
	return loggerInstance
}

// SetVerboseMode sets the verbose mode globally.
func SetVerboseMode(verbose bool) {
	GetLogger().SetVerbose(verbose)
}

// SetVerbose sets the verbose mode for this logger instance.
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
}

// IsVerbose returns whether verbose mode is enabled.
func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// SetOutput redirects log output, used by tests and by the interactive
// UI which owns the terminal while it runs.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *Logger) writer() io.Writer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.out
}

// formatMessage formats a message with optional printf-style arguments.
func formatMessage(msgOrFormat string, args ...interface{}) string {
	if len(args) > 0 {
		return fmt.Sprintf(msgOrFormat, args...)
	}
	return msgOrFormat
}

// Debug logs a debug message (only shown when verbose=true).
func (l *Logger) Debug(msgOrFormat string, args ...interface{}) {
	if !l.IsVerbose() {
		return
	}
	fmt.Fprintf(l.writer(), "%s [DEBUG] %s\n", time.Now().Format("15:04:05"), formatMessage(msgOrFormat, args...))
}

// Info logs an info message (always shown).
func (l *Logger) Info(msgOrFormat string, args ...interface{}) {
	fmt.Fprintf(l.writer(), "[INFO] %s\n", formatMessage(msgOrFormat, args...))
}

// Warn logs a warning message (always shown).
func (l *Logger) Warn(msgOrFormat string, args ...interface{}) {
	fmt.Fprintf(l.writer(), "[WARN] %s\n", formatMessage(msgOrFormat, args...))
}

// Error logs an error message (always shown).
func (l *Logger) Error(msgOrFormat string, args ...interface{}) {
	fmt.Fprintf(l.writer(), "[ERROR] %s\n", formatMessage(msgOrFormat, args...))
}

// Debugf logs a debug message using the global logger.
func Debugf(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// Infof logs an info message using the global logger.
func Infof(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// Warnf logs a warning message using the global logger.
func Warnf(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// Errorf logs an error message using the global logger.
func Errorf(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// SessionLogger logs to a PID-specific file. The interactive UI uses it
// because the alternate screen owns the terminal and writes to stderr
// would corrupt the rendering.
type SessionLogger struct {
	logger   *log.Logger
	logFile  *os.File
	enabled  bool
	filePath string
}

// NewSessionLogger creates a session logger with a PID-specific file
// under the system temp directory.
func NewSessionLogger() (*SessionLogger, error) {
	pid := os.Getpid()
	return NewSessionLoggerWithPath(fmt.Sprintf("%s/rtmilk-%d.log", os.TempDir(), pid))
}

// NewSessionLoggerWithPath creates a session logger with a custom path.
// On open failure it degrades to a discarding logger and returns the
// error so the caller can warn once.
func NewSessionLoggerWithPath(path string) (*SessionLogger, error) {
	sl := &SessionLogger{filePath: path}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		sl.logger = log.New(io.Discard, "", log.LstdFlags)
		return sl, err
	}

	sl.logFile = file
	sl.logger = log.New(file, "", log.LstdFlags)
	sl.enabled = true
	return sl, nil
}

// Printf logs a formatted message.
func (sl *SessionLogger) Printf(format string, args ...interface{}) {
	if sl.logger != nil {
		sl.logger.Printf(format, args...)
	}
}

// Println logs a message with a newline.
func (sl *SessionLogger) Println(args ...interface{}) {
	if sl.logger != nil {
		sl.logger.Println(args...)
	}
}

// Close closes the log file and degrades to a discarding logger.
func (sl *SessionLogger) Close() {
	if sl.logFile != nil {
		_ = sl.logFile.Close()
		sl.logFile = nil
	}
	sl.logger = log.New(io.Discard, "", log.LstdFlags)
	sl.enabled = false
}

// GetLogPath returns the log file path.
func (sl *SessionLogger) GetLogPath() string {
	return sl.filePath
}

// IsEnabled returns whether the logger is writing to a file.
func (sl *SessionLogger) IsEnabled() bool {
	return sl.enabled
}
