// Package logging provides structured logging with trace ID support.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	SourceKey  ContextKey = "source"
)

// Logger wraps logrus.Logger with GrepWise-specific structured helpers.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a new Logger instance for the named component (e.g. "index", "ingest").
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, component: component}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment variables.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if source := ctx.Value(SourceKey); source != nil {
		entry = entry.WithField("source", source)
	}
	return entry
}

func (l *Logger) WithTraceID(traceID string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, "trace_id": traceID})
}

func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, "error": err.Error()})
}

func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// Context helpers

func NewTraceID() string {
	return uuid.New().String()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey, source)
}

func GetSource(ctx context.Context) string {
	if source, ok := ctx.Value(SourceKey).(string); ok {
		return source
	}
	return ""
}

// Domain-specific structured helpers

// LogRequest logs an HTTP request against the REST API.
func (l *Logger) LogRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}).Info("http request")
}

// LogIngest logs the result of accepting a batch of records into the ingestion buffer.
func (l *Logger) LogIngest(ctx context.Context, sourceID string, accepted, dropped int, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"source_id": sourceID,
		"accepted":  accepted,
		"dropped":   dropped,
	})
	if err != nil {
		entry.WithError(err).Error("ingest failed")
	} else if dropped > 0 {
		entry.Warn("ingest buffer overflow, records dropped")
	} else {
		entry.Debug("ingest accepted")
	}
}

// LogIndexCommit logs an index engine commit cycle.
func (l *Logger) LogIndexCommit(ctx context.Context, records int, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"records":     records,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("index commit failed")
	} else {
		entry.Debug("index commit applied")
	}
}

// LogAlarmEvaluation logs one alarm rule evaluation cycle.
func (l *Logger) LogAlarmEvaluation(ctx context.Context, alarmID string, matched int, fired bool, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"alarm_id": alarmID,
		"matched":  matched,
		"fired":    fired,
	})
	if err != nil {
		entry.WithError(err).Error("alarm evaluation failed")
	} else {
		entry.Debug("alarm evaluated")
	}
}

// LogArchiveWrite logs an archive segment write.
func (l *Logger) LogArchiveWrite(ctx context.Context, segmentID string, records int, bytesWritten int64, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"segment_id":    segmentID,
		"records":       records,
		"bytes_written": bytesWritten,
	})
	if err != nil {
		entry.WithError(err).Error("archive write failed")
	} else {
		entry.Info("archive segment written")
	}
}

// LogJob logs a background scheduler job run.
func (l *Logger) LogJob(ctx context.Context, name string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"job":         name,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("job run failed")
	} else {
		entry.Debug("job run completed")
	}
}

// Generic level helpers

func (l *Logger) Debug2(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Debug(message)
}

func (l *Logger) Info2(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Info(message)
}

func (l *Logger) Warn2(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Warn(message)
}

func (l *Logger) Error2(ctx context.Context, message string, err error, fields map[string]interface{}) {
	entry := l.WithContext(ctx)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.WithFields(fields).Error(message)
}

// Global default logger, initialized once at process startup.
var defaultLogger *Logger

func InitDefault(component, level, format string) {
	defaultLogger = New(component, level, format)
}

func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("grepwise", "info", "json")
	}
	return defaultLogger
}

func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
}
