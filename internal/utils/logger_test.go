package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
)

// TestGetLogger verifies singleton pattern - same instance returned
func TestGetLogger(t *testing.T) {
	logger1 := GetLogger()
	logger2 := GetLogger()

	if logger1 != logger2 {
		t.Error("GetLogger() should return same singleton instance")
	}
}

// TestLoggerDefaultVerboseMode verifies verbose is false by default
func TestLoggerDefaultVerboseMode(t *testing.T) {
	once = sync.Once{}
	loggerInstance = nil

	logger := GetLogger()
	if logger.IsVerbose() {
		t.Error("Logger should have verbose=false by default")
	}
}

// TestSetVerboseMode verifies SetVerboseMode changes verbose state
func TestSetVerboseMode(t *testing.T) {
	once = sync.Once{}
	loggerInstance = nil

	SetVerboseMode(true)
	logger := GetLogger()
	if !logger.IsVerbose() {
		t.Error("SetVerboseMode(true) should enable verbose mode")
	}

	SetVerboseMode(false)
	if logger.IsVerbose() {
		t.Error("SetVerboseMode(false) should disable verbose mode")
	}
}

// captureLogger returns a fresh logger writing into the returned buffer.
func captureLogger() (*Logger, *bytes.Buffer) {
	once = sync.Once{}
	loggerInstance = nil
	logger := GetLogger()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	return logger, &buf
}

// TestDebugOnlyShownWhenVerbose verifies Debug output only when verbose=true
func TestDebugOnlyShownWhenVerbose(t *testing.T) {
	logger, buf := captureLogger()

	logger.SetVerbose(false)
	logger.Debug("test message")
	if buf.Len() > 0 {
		t.Errorf("Debug should not output when verbose=false, got: %s", buf.String())
	}

	logger.SetVerbose(true)
	logger.Debug("test message verbose")
	if !strings.Contains(buf.String(), "[DEBUG]") {
		t.Errorf("Debug should output [DEBUG] prefix when verbose=true, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "test message verbose") {
		t.Errorf("Debug should output message when verbose=true, got: %s", buf.String())
	}
}

// TestLogLevelPrefixes verifies each level has correct prefix
func TestLogLevelPrefixes(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(*Logger, string)
		prefix  string
		verbose bool
	}{
		{"Debug", func(l *Logger, m string) { l.Debug("%s", m) }, "[DEBUG]", true},
		{"Info", func(l *Logger, m string) { l.Info("%s", m) }, "[INFO]", false},
		{"Warn", func(l *Logger, m string) { l.Warn("%s", m) }, "[WARN]", false},
		{"Error", func(l *Logger, m string) { l.Error("%s", m) }, "[ERROR]", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := captureLogger()
			logger.SetVerbose(tt.verbose)
			tt.logFunc(logger, "test")

			if !strings.Contains(buf.String(), tt.prefix) {
				t.Errorf("%s should have prefix %s, got: %s", tt.name, tt.prefix, buf.String())
			}
		})
	}
}

// TestConvenienceFunctions verifies global Debugf, Infof, Warnf, Errorf functions
func TestConvenienceFunctions(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(string, ...interface{})
		prefix  string
	}{
		{"Debugf", Debugf, "[DEBUG]"},
		{"Infof", Infof, "[INFO]"},
		{"Warnf", Warnf, "[WARN]"},
		{"Errorf", Errorf, "[ERROR]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := captureLogger()
			logger.SetVerbose(true)

			tt.logFunc("formatted %s", "value")

			if !strings.Contains(buf.String(), tt.prefix) {
				t.Errorf("%s should have prefix %s, got: %s", tt.name, tt.prefix, buf.String())
			}
			if !strings.Contains(buf.String(), "formatted value") {
				t.Errorf("%s should format message, got: %s", tt.name, buf.String())
			}
		})
	}
}

// TestLoggerThreadSafety verifies concurrent access is safe
func TestLoggerThreadSafety(t *testing.T) {
	logger, _ := captureLogger()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.SetVerbose(n%2 == 0)
			logger.Debug("debug %d", n)
			logger.Info("info %d", n)
		}(i)
	}
	wg.Wait()
}

// TestVerboseOutputIncludesTimestamp verifies debug lines carry an HH:MM:SS prefix
func TestVerboseOutputIncludesTimestamp(t *testing.T) {
	logger, buf := captureLogger()
	logger.SetVerbose(true)
	logger.Debug("timestamp test message")

	output := buf.String()
	linePattern := regexp.MustCompile(`^\d{2}:\d{2}:\d{2} \[DEBUG\] timestamp test message\n$`)
	if !linePattern.MatchString(output) {
		t.Errorf("expected output matching 'HH:MM:SS [DEBUG] timestamp test message\\n', got: %q", output)
	}
}

// TestNonVerboseNoTimestamp verifies normal output has no timestamp prefix
func TestNonVerboseNoTimestamp(t *testing.T) {
	logger, buf := captureLogger()
	logger.SetVerbose(false)

	logger.Info("info without timestamp")
	if !strings.HasPrefix(buf.String(), "[INFO]") {
		t.Errorf("Info output should start with [INFO] (no timestamp), got: %q", buf.String())
	}

	buf.Reset()
	logger.Warn("warn without timestamp")
	if !strings.HasPrefix(buf.String(), "[WARN]") {
		t.Errorf("Warn output should start with [WARN] (no timestamp), got: %q", buf.String())
	}

	buf.Reset()
	logger.Debug("should not appear")
	if buf.Len() > 0 {
		t.Errorf("Debug with verbose=false should produce no output, got: %q", buf.String())
	}
}

// TestSessionLoggerCreation verifies logger creates PID-specific log file
func TestSessionLoggerCreation(t *testing.T) {
	sl, err := NewSessionLogger()
	if err != nil {
		t.Fatalf("NewSessionLogger() error = %v", err)
	}
	defer sl.Close()

	logPath := sl.GetLogPath()
	if logPath == "" {
		t.Error("GetLogPath() should return non-empty path")
	}
	if !strings.Contains(logPath, "rtmilk") {
		t.Errorf("Log path should contain 'rtmilk', got: %s", logPath)
	}
	if !strings.HasPrefix(logPath, os.TempDir()) && !strings.HasPrefix(logPath, "/tmp") {
		t.Errorf("Log path should be in temp directory, got: %s", logPath)
	}

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Errorf("Log file should exist at %s", logPath)
	}
	_ = os.Remove(logPath)
}

// TestSessionLoggerWritesMessages verifies Printf and Println reach the file
func TestSessionLoggerWritesMessages(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "session.log")
	sl, err := NewSessionLoggerWithPath(customPath)
	if err != nil {
		t.Fatalf("NewSessionLoggerWithPath() error = %v", err)
	}

	sl.Printf("Printf message: %s", "test")
	sl.Println("Println message")
	sl.Close()

	content, err := os.ReadFile(customPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "Printf message: test") {
		t.Errorf("Log should contain Printf message, got: %s", content)
	}
	if !strings.Contains(string(content), "Println message") {
		t.Errorf("Log should contain Println message, got: %s", content)
	}
}

// TestSessionLoggerGracefulDegradation verifies fallback to io.Discard
func TestSessionLoggerGracefulDegradation(t *testing.T) {
	sl, err := NewSessionLoggerWithPath("/nonexistent/directory/log.txt")
	if err == nil {
		t.Error("expected an error for an unwritable path")
	}

	// Still usable: writes go to io.Discard.
	sl.Printf("This should not panic: %s", "test")
	sl.Println("This should not panic")
	sl.Close()

	if sl.IsEnabled() {
		t.Error("Logger should not be enabled when file creation fails")
	}
}

// TestSessionLoggerClose verifies writes after close do not panic
func TestSessionLoggerClose(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "close.log")
	sl, err := NewSessionLoggerWithPath(customPath)
	if err != nil {
		t.Fatalf("NewSessionLoggerWithPath() error = %v", err)
	}

	sl.Close()
	sl.Printf("After close")
	sl.Println("After close")

	if sl.IsEnabled() {
		t.Error("Logger should be disabled after Close")
	}
}
