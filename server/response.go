package server

import (
	"encoding/json"
	"net/http"

	"github.com/teranos/jobd/errors"
	"github.com/teranos/jobd/logger"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes the standard error envelope
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	writeJSON(w, status, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: logger.RequestIDFromContext(r.Context()),
		Details:   details,
	})
}

// writeValidationError reports a request body that could not be accepted
func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "Request validation failed",
		map[string]interface{}{
			"errors": []string{err.Error()},
			"path":   r.URL.Path,
		})
}

// readJSON decodes a bounded request body into v
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) ([]byte, error) {
	body, err := readBody(w, r)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, errors.Wrap(err, "invalid JSON body")
	}
	return body, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "invalid JSON body")
	}
	return raw, nil
}
