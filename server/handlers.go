package server

import (
	"fmt"
	"net/http"

	"github.com/teranos/jobd/detect"
	"github.com/teranos/jobd/logger"
)

// HandleHealth handles GET /health. A draining server answers 503 so load
// balancers stop routing to it.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := s.queue.Health()

	status, code := "ok", http.StatusOK
	if s.getState() != ServerStateRunning {
		status, code = stateString(s.getState()), http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:                  status,
		Service:                 ServiceName,
		Version:                 s.version,
		JobsInMemory:            snapshot.JobsInMemory,
		IdempotencyKeysInMemory: snapshot.IdempotencyKeys,
		JobRunTimeoutSec:        snapshot.RunTimeout.Seconds(),
		JobsTTLSec:              snapshot.TTL.Seconds(),
		JobsMaxItems:            snapshot.MaxItems,
		Memory:                  snapshot.Memory,
		RequestID:               logger.RequestIDFromContext(r.Context()),
	})
}

// HandleDetectObjects handles POST /detect/objects, running detection inline
func (s *Server) HandleDetectObjects(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeValidationError(w, r, err)
		return
	}
	req, err := detect.ParseRequest(body)
	if err != nil {
		writeValidationError(w, r, err)
		return
	}

	resp, err := s.detector.Detect(r.Context(), req)
	if err != nil {
		s.requestLogger(r).Infow("Detection rejected image", logger.FieldError, err)
		writeError(w, r, http.StatusBadRequest, codeInvalidImagePayload,
			fmt.Sprintf("invalid image payload: %v", err),
			map[string]interface{}{"stage": "decode_or_open"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
