package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Severity represents log message severity levels
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity accepts the names printed by Severity.String, case-insensitively,
// plus "warn".
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return SeverityDebug, nil
	case "", "info":
		return SeverityInfo, nil
	case "warn", "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	}
	return SeverityInfo, fmt.Errorf("unknown log level %q", s)
}

func (s Severity) zapLevel() zapcore.Level {
	switch s {
	case SeverityDebug:
		return zapcore.DebugLevel
	case SeverityWarning:
		return zapcore.WarnLevel
	case SeverityError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger interface defines the logging contract for the inventory packages
type Logger interface {
	// Log logs a message with the specified severity
	Log(severity Severity, msg string)

	// Logf logs a formatted message with the specified severity
	Logf(severity Severity, format string, args ...interface{})

	// Error logs an error
	Error(err error)

	// Debug logs a debug message
	Debug(msg string)

	// Info logs an info message
	Info(msg string)

	// Warning logs a warning message
	Warning(msg string)
}

// ZapLogger implements the Logger interface on top of a zap core.
// Debug, Info and Warning go to the output writer, Error to the error writer.
type ZapLogger struct {
	out      *zap.Logger
	errOut   *zap.Logger
	minLevel Severity
}

// FileOptions configures rotation of a log file.
type FileOptions struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func encoderConfig() zapcore.EncoderConfig {
	config := zap.NewDevelopmentEncoderConfig()
	config.TimeKey = "time"
	config.CallerKey = ""
	config.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	config.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		switch l {
		case zapcore.DebugLevel:
			enc.AppendString(SeverityDebug.String())
		case zapcore.InfoLevel:
			enc.AppendString(SeverityInfo.String())
		case zapcore.WarnLevel:
			enc.AppendString(SeverityWarning.String())
		default:
			enc.AppendString(SeverityError.String())
		}
	}
	return config
}

func newCore(w io.Writer, minLevel Severity) zapcore.Core {
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.AddSync(w),
		minLevel.zapLevel())
}

// NewZapLogger creates a logger writing to stdout and stderr
func NewZapLogger(minLevel Severity) *ZapLogger {
	return NewZapLoggerWithWriter(os.Stdout, os.Stderr, minLevel)
}

// NewZapLoggerWithWriter creates a logger with custom writers
func NewZapLoggerWithWriter(stdout, stderr io.Writer, minLevel Severity) *ZapLogger {
	return &ZapLogger{
		out:      zap.New(newCore(stdout, minLevel)),
		errOut:   zap.New(newCore(stderr, minLevel)),
		minLevel: minLevel,
	}
}

// NewFileLogger creates a logger writing every severity to a rotated file.
func NewFileLogger(opts FileOptions, minLevel Severity) *ZapLogger {
	w := &lumberjack.Logger{
		Filename:   opts.Filename,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	l := zap.New(newCore(w, minLevel))
	return &ZapLogger{out: l, errOut: l, minLevel: minLevel}
}

// Log logs a message with the specified severity
func (l *ZapLogger) Log(severity Severity, msg string) {
	if severity < l.minLevel {
		return
	}

	switch severity {
	case SeverityDebug:
		l.out.Debug(msg)
	case SeverityInfo:
		l.out.Info(msg)
	case SeverityWarning:
		l.out.Warn(msg)
	case SeverityError:
		l.errOut.Error(msg)
	}
}

// Logf logs a formatted message with the specified severity
func (l *ZapLogger) Logf(severity Severity, format string, args ...interface{}) {
	if severity < l.minLevel {
		return
	}
	l.Log(severity, fmt.Sprintf(format, args...))
}

// Error logs an error
func (l *ZapLogger) Error(err error) {
	if err != nil {
		l.Log(SeverityError, err.Error())
	}
}

// Debug logs a debug message
func (l *ZapLogger) Debug(msg string) {
	l.Log(SeverityDebug, msg)
}

// Info logs an info message
func (l *ZapLogger) Info(msg string) {
	l.Log(SeverityInfo, msg)
}

// Warning logs a warning message
func (l *ZapLogger) Warning(msg string) {
	l.Log(SeverityWarning, msg)
}

// Sync flushes buffered output.
func (l *ZapLogger) Sync() error {
	if err := l.out.Sync(); err != nil {
		return err
	}
	if l.errOut != l.out {
		return l.errOut.Sync()
	}
	return nil
}

// NoOpLogger is a logger that doesn't log anything
type NoOpLogger struct{}

// NewNoOpLogger creates a new no-op logger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// Log does nothing
func (l *NoOpLogger) Log(severity Severity, msg string) {}

// Logf does nothing
func (l *NoOpLogger) Logf(severity Severity, format string, args ...interface{}) {}

// Error does nothing
func (l *NoOpLogger) Error(err error) {}

// Debug does nothing
func (l *NoOpLogger) Debug(msg string) {}

// Info does nothing
func (l *NoOpLogger) Info(msg string) {}

// Warning does nothing
func (l *NoOpLogger) Warning(msg string) {}
