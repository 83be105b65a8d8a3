package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging across jobd.
// Use these constants instead of raw strings to keep log queries stable.
const (
	FieldJobID          = "job_id"
	FieldRequestID      = "request_id"
	FieldTask           = "task"
	FieldStatus         = "status"
	FieldIdempotencyKey = "idempotency_key"

	FieldComponent = "component"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldRemote    = "remote"

	FieldElapsed    = "elapsed"
	FieldDurationMS = "duration_ms"

	FieldError     = "error"
	FieldErrorCode = "error_code"

	FieldCount   = "count"
	FieldEvicted = "evicted"

	FieldAddress = "address"
	FieldPort    = "port"
	FieldFile    = "file"
)

type contextKey string

const (
	jobIDKey     contextKey = "logger_job_id"
	requestIDKey contextKey = "logger_request_id"
)

// WithJobID adds a job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored by WithRequestID, if any
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if jobID, ok := ctx.Value(jobIDKey).(string); ok && jobID != "" {
		fields = append(fields, FieldJobID, jobID)
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}

	return fields
}

// FromContext returns base with fields extracted from ctx attached.
// A nil base falls back to the global Logger.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection:
//
//	queue := async.NewQueue(executor, cfg, async.WithLogger(logger.ComponentLogger("async")))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
