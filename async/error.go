package async

import (
	"fmt"

	"github.com/teranos/jobd/errors"
)

// ErrorCode is the stable, machine-readable classification of an error
type ErrorCode string

const (
	ErrorCodeJobNotFound       ErrorCode = "job_not_found"
	ErrorCodeJobNotCancelable  ErrorCode = "job_not_cancelable"
	ErrorCodeJobFailed         ErrorCode = "job_failed"
	ErrorCodeJobTimeout        ErrorCode = "job_timeout"
	ErrorCodeJobCanceled       ErrorCode = "job_canceled"
	ErrorCodeJobNotCompleted   ErrorCode = "job_not_completed"
	ErrorCodeInvalidPagination ErrorCode = "invalid_pagination"
	ErrorCodeInvalidCursor     ErrorCode = "invalid_cursor"
	ErrorCodeInvalidStatus     ErrorCode = "invalid_status"
	ErrorCodeUnsupportedTask   ErrorCode = "unsupported_task"
	ErrorCodeValidation        ErrorCode = "validation_error"
	ErrorCodeUnavailable       ErrorCode = "service_unavailable"
)

// Error is returned by every Queue operation that fails.
// It unwraps to one of the sentinels in package errors (ErrNotFound,
// ErrConflict, ErrInvalidRequest, ErrUnavailable).
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}

	kind error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the sentinel for errors.Is
func (e *Error) Unwrap() error {
	return e.kind
}

func newError(kind error, code ErrorCode, message string, details map[string]interface{}) *Error {
	return &Error{Code: code, Message: message, Details: details, kind: kind}
}

// AsError extracts an *Error from err's chain
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func errJobNotFound(id string) error {
	return newError(errors.ErrNotFound, ErrorCodeJobNotFound, "job not found",
		map[string]interface{}{"jobId": id})
}

func errNotCancelable(job *Job) error {
	return newError(errors.ErrConflict, ErrorCodeJobNotCancelable, "job already completed",
		map[string]interface{}{"jobId": job.ID, "status": job.Status})
}

// errNoResult explains why a job has no result to return
func errNoResult(job *Job) error {
	details := map[string]interface{}{"jobId": job.ID}
	switch job.Status {
	case JobStatusFailed:
		return newError(errors.ErrConflict, ErrorCodeJobFailed, orDefault(job.Error, "job failed"), details)
	case JobStatusTimeout:
		return newError(errors.ErrConflict, ErrorCodeJobTimeout, orDefault(job.Error, "job timeout"), details)
	case JobStatusCanceled:
		return newError(errors.ErrConflict, ErrorCodeJobCanceled, orDefault(job.Error, "job canceled"), details)
	default:
		details["status"] = job.Status
		return newError(errors.ErrConflict, ErrorCodeJobNotCompleted, "job not completed", details)
	}
}

func errInvalidLimit(limit int) error {
	return newError(errors.ErrInvalidRequest, ErrorCodeInvalidPagination,
		fmt.Sprintf("limit must be between %d and %d", MinListLimit, MaxListLimit),
		map[string]interface{}{"limit": limit})
}

func errInvalidCursor(cursor string) error {
	return newError(errors.ErrInvalidRequest, ErrorCodeInvalidCursor,
		"cursor must be a non-negative integer",
		map[string]interface{}{"cursor": cursor})
}

func errInvalidStatus(status string) error {
	return newError(errors.ErrInvalidRequest, ErrorCodeInvalidStatus,
		"unknown status filter",
		map[string]interface{}{"status": status})
}

func errUnsupportedTask(task string) error {
	return newError(errors.ErrInvalidRequest, ErrorCodeUnsupportedTask, "unsupported task",
		map[string]interface{}{"task": task})
}

func errInvalidPayload(task string, cause error) error {
	return newError(errors.ErrInvalidRequest, ErrorCodeValidation, cause.Error(),
		map[string]interface{}{"task": task})
}

func errShuttingDown() error {
	return newError(errors.ErrUnavailable, ErrorCodeUnavailable, "queue is shutting down", nil)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
