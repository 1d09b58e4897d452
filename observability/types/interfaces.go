// Package types holds the observability contracts shared by every component
// of the assessment service. Implementations live in sibling packages so the
// domain and application layers depend on interfaces only.
package types

import (
	"context"
	"io"
)

// Logger defines the contract for structured logging.
// Implementations emit JSON suitable for log aggregation systems like Loki.
// All methods are context-aware to support request tracing and correlation.
type Logger interface {
	// Info logs an informational message.
	Info(ctx context.Context, msg string, fields Fields)

	// Error logs an error message with the associated error.
	Error(ctx context.Context, msg string, err error, fields Fields)

	// Warn logs a warning message.
	// Use for situations that are unexpected but handled, such as a scan
	// transition lost to a concurrent executor.
	Warn(ctx context.Context, msg string, fields Fields)

	// Debug logs a debug message. Typically filtered out in production.
	Debug(ctx context.Context, msg string, fields Fields)

	// WithFields returns a new Logger that includes fields in every entry.
	WithFields(fields Fields) Logger
}

// Metrics defines the contract for metrics collection.
// Implementations should follow Prometheus naming conventions.
type Metrics interface {
	// RecordSuccess increments the success counter for an operation type.
	//
	// Parameters:
	//   - operationType: The type of operation that succeeded (e.g., "scan_completed", "transition")
	RecordSuccess(operationType string)

	// RecordError increments the error counter for an operation and error type.
	//
	// Parameters:
	//   - operationType: The type of operation that failed (e.g., "scan", "dispatch")
	//   - errorType: The category of error (e.g., "timeout", "conflict", "store")
	RecordError(operationType string, errorType string)

	// RecordDuration records the duration of an operation in seconds.
	// Use time.Since(start).Seconds().
	RecordDuration(operation string, duration float64)

	// RecordArtifactSize records the size of a stored scan artifact in bytes.
	//
	// Parameters:
	//   - kind: The artifact kind (e.g., "raw_report")
	//   - bytes: The size in bytes
	RecordArtifactSize(kind string, bytes int64)

	// RecordFindings adds count findings of the given severity.
	RecordFindings(severity string, count int)

	// StartOperation increments the in-progress gauge for an operation.
	// Must be paired with EndOperation.
	StartOperation(operation string)

	// EndOperation decrements the in-progress gauge for an operation.
	// Call it in a defer so it runs on every return path.
	EndOperation(operation string)
}

// Fields represents structured logging fields as key-value pairs.
// Values can be any JSON-serializable type.
//
// Example:
//
//	fields := Fields{
//		"assessment_id": "3f1c...",
//		"status":        "running",
//		"duration":      1.23,
//	}
type Fields map[string]interface{}

// ContextKey is the type of context keys read by loggers.
type ContextKey string

// Context keys extracted into every log entry when present.
const (
	TraceIDKey      ContextKey = "trace_id"
	RequestIDKey    ContextKey = "request_id"
	AssessmentIDKey ContextKey = "assessment_id"
)

// MetricsFactory builds a Metrics instance for a component.
type MetricsFactory func(component string) Metrics

// LoggerFactory builds a Logger for serviceName carrying fields.
type LoggerFactory func(serviceName string, fields Fields) Logger

// Config holds observability configuration for the provider.
type Config struct {
	// ServiceName identifies the service in logs and metrics.
	ServiceName string

	// Environment specifies the deployment environment.
	Environment string

	// LogLevel sets the minimum log level to output: debug, info, warn, error.
	LogLevel string

	// LogOutput specifies where logs are written. Defaults to os.Stdout.
	LogOutput io.Writer

	// AdditionalFields are included in every log entry.
	AdditionalFields Fields

	// MetricsFactory overrides the default Prometheus metrics backend.
	MetricsFactory MetricsFactory

	// LoggerFactory overrides the default Loki JSON logger on LogOutput.
	LoggerFactory LoggerFactory
}

// Provider manages the lifecycle of observability components.
// Multiple calls with the same component name return the same instance.
type Provider interface {
	// Logger returns a Logger instance for the specified component.
	Logger(component string) Logger

	// Metrics returns a Metrics instance for the specified component.
	Metrics(component string) Metrics

	// Close shuts down the provider and releases all resources.
	Close() error
}
