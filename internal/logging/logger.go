package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	// LogLevelQuiet suppresses all output except critical errors
	LogLevelQuiet LogLevel = "quiet"
	// LogLevelNormal shows standard operational messages
	LogLevelNormal LogLevel = "normal"
	// LogLevelVerbose shows detailed operational information
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug shows all debug information
	LogLevelDebug LogLevel = "debug"
)

// Logger provides structured logging capabilities. It is injected as a
// value into the differ and the generator; generation never depends on it.
type Logger struct {
	logger *logrus.Logger
	level  LogLevel
}

// Config holds logger configuration
type Config struct {
	Level      LogLevel
	Output     io.Writer
	Format     string // "text" or "json"
	ShowCaller bool
	LogFile    string
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	if config.Output != nil {
		logger.SetOutput(config.Output)
	} else {
		logger.SetOutput(os.Stdout)
	}

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	switch config.Level {
	case LogLevelQuiet:
		logger.SetLevel(logrus.ErrorLevel)
	case LogLevelNormal:
		logger.SetLevel(logrus.InfoLevel)
	case LogLevelVerbose:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelDebug:
		logger.SetLevel(logrus.TraceLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if config.ShowCaller {
		logger.SetReportCaller(true)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				filename := filepath.Base(f.File)
				return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filename, f.Line)
			},
		})
	}

	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFile, err)
		}
		if config.Output == nil {
			logger.SetOutput(io.MultiWriter(os.Stdout, file))
		} else {
			logger.SetOutput(io.MultiWriter(config.Output, file))
		}
	}

	return &Logger{
		logger: logger,
		level:  config.Level,
	}, nil
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() *Logger {
	logger, _ := NewLogger(Config{
		Level:  LogLevelNormal,
		Output: os.Stdout,
		Format: "text",
	})
	return logger
}

// NewSilentLogger creates a logger that discards everything. Used by tests
// and by callers that opt out of advisory logging.
func NewSilentLogger() *Logger {
	logger, _ := NewLogger(Config{
		Level:  LogLevelQuiet,
		Output: io.Discard,
		Format: "text",
	})
	return logger
}

// WithField returns an entry with a single field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

// WithFields returns an entry with multiple fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.logger.WithFields(logrus.Fields(fields))
}

// WithError returns an entry with an error field
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.logger.WithError(err)
}

// Debug logs a debug message
func (l *Logger) Debug(args ...interface{}) {
	l.logger.Debug(args...)
}

// Info logs an info message
func (l *Logger) Info(args ...interface{}) {
	l.logger.Info(args...)
}

// Warn logs a warning message
func (l *Logger) Warn(args ...interface{}) {
	l.logger.Warn(args...)
}

// Error logs an error message
func (l *Logger) Error(args ...interface{}) {
	l.logger.Error(args...)
}

// GetLevel returns the configured level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// LogOperationStart logs the start of an operation and returns a function
// that logs its completion with the elapsed time.
func (l *Logger) LogOperationStart(operation string, fields map[string]interface{}) func(error) {
	startTime := time.Now()
	entry := l.WithFields(fields).WithField("operation", operation)
	entry.Debug("Operation started")

	return func(err error) {
		duration := time.Since(startTime)
		completed := entry.WithField("duration", duration.String())
		if err != nil {
			completed.WithError(err).Error("Operation failed")
			return
		}
		completed.Debug("Operation completed")
	}
}

// LogSchemaExtraction logs the outcome of a schema introspection.
func (l *Logger) LogSchemaExtraction(database string, tableCount int, duration time.Duration, err error) {
	entry := l.WithFields(map[string]interface{}{
		"database": database,
		"tables":   tableCount,
		"duration": duration.String(),
	})
	if err != nil {
		entry.WithError(err).Error("Schema extraction failed")
		return
	}
	entry.Info("Schema extraction completed")
}

// LogSchemaComparison logs the outcome of a schema comparison.
func (l *Logger) LogSchemaComparison(current, target string, changes int, duration time.Duration) {
	l.WithFields(map[string]interface{}{
		"current":  current,
		"target":   target,
		"changes":  changes,
		"duration": duration.String(),
	}).Info("Schema comparison completed")
}

// LogScriptGeneration logs the outcome of migration script generation.
func (l *Logger) LogScriptGeneration(migration string, phases int, duration time.Duration, err error) {
	entry := l.WithFields(map[string]interface{}{
		"migration": migration,
		"phases":    phases,
		"duration":  duration.String(),
	})
	if err != nil {
		entry.WithError(err).Error("Script generation failed")
		return
	}
	entry.Info("Script generation completed")
}

// LogMigrationApplied logs a successfully applied migration.
func (l *Logger) LogMigrationApplied(migration string, batches int, duration time.Duration) {
	l.WithFields(map[string]interface{}{
		"migration": migration,
		"batches":   batches,
		"duration":  duration.String(),
	}).Info("Migration applied")
}
