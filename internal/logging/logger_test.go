package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSeverityString(t *testing.T) {
	tests := []struct {
		severity Severity
		expected string
	}{
		{SeverityDebug, "DEBUG"},
		{SeverityInfo, "INFO"},
		{SeverityWarning, "WARNING"},
		{SeverityError, "ERROR"},
		{Severity(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := tt.severity.String()
			if got != tt.expected {
				t.Errorf("Severity.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"debug", SeverityDebug, false},
		{"INFO", SeverityInfo, false},
		{"", SeverityInfo, false},
		{"warn", SeverityWarning, false},
		{"Warning", SeverityWarning, false},
		{"error", SeverityError, false},
		{"loud", SeverityInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeverity(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSeverity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSeverity(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewZapLogger(t *testing.T) {
	logger := NewZapLogger(SeverityInfo)
	if logger == nil {
		t.Fatal("NewZapLogger() returned nil")
	}
	if logger.minLevel != SeverityInfo {
		t.Errorf("NewZapLogger() minLevel = %v, want %v", logger.minLevel, SeverityInfo)
	}
}

func TestZapLogger_Log(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewZapLoggerWithWriter(&stdout, &stderr, SeverityDebug)

	tests := []struct {
		name     string
		severity Severity
		message  string
		checkOut bool // true for stdout, false for stderr
	}{
		{"Debug", SeverityDebug, "debug message", true},
		{"Info", SeverityInfo, "info message", true},
		{"Warning", SeverityWarning, "warning message", true},
		{"Error", SeverityError, "error message", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout.Reset()
			stderr.Reset()

			logger.Log(tt.severity, tt.message)

			var output string
			if tt.checkOut {
				output = stdout.String()
			} else {
				output = stderr.String()
			}

			if !strings.Contains(output, tt.message) {
				t.Errorf("Log output should contain %q, got: %s", tt.message, output)
			}
			if !strings.Contains(output, tt.severity.String()) {
				t.Errorf("Log output should contain severity %q, got: %s", tt.severity.String(), output)
			}
		})
	}
}

func TestZapLogger_Logf(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewZapLoggerWithWriter(&stdout, &stderr, SeverityInfo)

	logger.Logf(SeverityInfo, "walked %d nodes from %s", 3, "PsActiveProcessHead")

	output := stdout.String()
	if !strings.Contains(output, "walked 3 nodes from PsActiveProcessHead") {
		t.Errorf("Logf output should contain formatted message, got: %s", output)
	}
}

func TestZapLogger_Error(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewZapLoggerWithWriter(&stdout, &stderr, SeverityInfo)

	logger.Error(errors.New("read failed"))

	output := stderr.String()
	if !strings.Contains(output, "read failed") {
		t.Errorf("Error output should contain error message, got: %s", output)
	}

	// Test with nil error
	stderr.Reset()
	logger.Error(nil)
	if stderr.Len() != 0 {
		t.Errorf("Error(nil) should not log anything, got: %s", stderr.String())
	}
}

func TestZapLogger_MinLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewZapLoggerWithWriter(&stdout, &stderr, SeverityWarning)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Logf(SeverityInfo, "info %d", 1)

	if stdout.Len() != 0 {
		t.Errorf("Debug and Info should not be logged when minLevel is Warning, got: %s", stdout.String())
	}

	logger.Warning("warning message")

	if !strings.Contains(stdout.String(), "warning message") {
		t.Errorf("Warning should be logged, got: %s", stdout.String())
	}
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vmiscan.log")
	logger := NewFileLogger(FileOptions{Filename: path, MaxSizeMB: 1}, SeverityInfo)

	logger.Info("snapshot complete")
	logger.Error(errors.New("window release failed"))
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{"snapshot complete", "window release failed", "ERROR"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file should contain %q, got: %s", want, data)
		}
	}
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	if logger == nil {
		t.Fatal("NewNoOpLogger() returned nil")
	}

	// All these should do nothing and not panic
	logger.Log(SeverityInfo, "test")
	logger.Logf(SeverityInfo, "test %s", "formatted")
	logger.Error(errors.New("test error"))
	logger.Debug("debug")
	logger.Info("info")
	logger.Warning("warning")
}

var (
	_ Logger = (*ZapLogger)(nil)
	_ Logger = (*NoOpLogger)(nil)
)
