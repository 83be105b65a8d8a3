package server

import (
	"net/http"

	"github.com/teranos/jobd/async"
	"github.com/teranos/jobd/errors"
)

// Error codes owned by the HTTP layer; queue codes come from async.ErrorCode.
const (
	codeValidation          = string(async.ErrorCodeValidation)
	codeInvalidImagePayload = "invalid_image_payload"
	codeRateLimited         = "rate_limited"
	codeInternal            = "internal_error"
	codeUnavailable         = string(async.ErrorCodeUnavailable)
)

// statusForError maps an error to its HTTP status by the sentinel it wraps
func statusForError(err error) int {
	if e, ok := async.AsError(err); ok && e.Code == async.ErrorCodeValidation {
		return http.StatusUnprocessableEntity
	}
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsConflict(err):
		return http.StatusConflict
	case errors.IsInvalidRequest(err):
		return http.StatusBadRequest
	case errors.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err as an error envelope. Queue errors keep their code,
// message and details; anything else is logged and reported as internal.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error, context string) {
	status := statusForError(err)

	if e, ok := async.AsError(err); ok {
		writeError(w, r, status, string(e.Code), e.Message, e.Details)
		return
	}

	s.requestLogger(r).Errorw(context, "error", err, "status", status)
	writeError(w, r, status, codeInternal, context, nil)
}
