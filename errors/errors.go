// Package errors provides error handling for jobd.
//
// It re-exports github.com/cockroachdb/errors so every package gets stack
// traces, wrapping and user-facing details from a single import:
//
//	if err := queue.Cancel(id); err != nil {
//	    return errors.Wrapf(err, "cancel %s", id)
//	}
//
//	if errors.Is(err, errors.ErrNotFound) {
//	    // 404
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// CombineErrors keeps the first non-nil error and attaches the other as secondary
var CombineErrors = crdb.CombineErrors

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
	Mark        = crdb.Mark
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
)

// Sentinel errors shared by the orchestrator, the HTTP layer and the client.
// Wrap or Mark them to add context while keeping errors.Is working.
var (
	// ErrNotFound indicates the requested job does not exist (or was evicted)
	ErrNotFound = New("not found")

	// ErrConflict indicates the operation is invalid for the job's current state
	ErrConflict = New("conflict")

	// ErrInvalidRequest indicates malformed input, such as a bad cursor or limit
	ErrInvalidRequest = New("invalid request")

	// ErrUnavailable indicates the service is shutting down or not ready
	ErrUnavailable = New("service unavailable")
)

// IsNotFound reports whether err is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflict reports whether err is or wraps ErrConflict
func IsConflict(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsInvalidRequest reports whether err is or wraps ErrInvalidRequest
func IsInvalidRequest(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsUnavailable reports whether err is or wraps ErrUnavailable
func IsUnavailable(err error) bool {
	return err != nil && Is(err, ErrUnavailable)
}
