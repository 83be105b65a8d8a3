package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/teranos/jobd/async"
	"github.com/teranos/jobd/errors"
	"github.com/teranos/jobd/logger"
)

// HandleCreateJob handles POST /jobs.
// The body is {"task", "idempotencyKey"?, ...task payload}; the whole body is
// handed to the task as its payload.
func (s *Server) HandleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	body, err := readJSON(w, r, &req)
	if err != nil {
		writeValidationError(w, r, err)
		return
	}
	if req.Task == "" {
		writeValidationError(w, r, errors.New("task is required"))
		return
	}

	receipt, err := s.queue.Submit(r.Context(), async.SubmitRequest{
		Task:           req.Task,
		Payload:        body,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.handleError(w, r, err, "failed to submit job")
		return
	}

	s.requestLogger(r).Infow("Job accepted",
		logger.FieldJobID, receipt.JobID,
		logger.FieldTask, req.Task,
		logger.FieldStatus, receipt.Status,
		"replayed", receipt.Replayed)

	writeJSON(w, http.StatusOK, CreateJobResponse{
		JobID:      receipt.JobID,
		Status:     receipt.Status,
		AcceptedAt: receipt.AcceptedAt,
		RequestID:  logger.RequestIDFromContext(r.Context()),
	})
}

// HandleListJobs handles GET /jobs?status=&limit=&cursor=
func (s *Server) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := int(s.listLimit.Load())
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, string(async.ErrorCodeInvalidPagination),
				"limit must be an integer", map[string]interface{}{"limit": raw})
			return
		}
		limit = parsed
	}

	page, err := s.queue.List(async.ListOptions{
		Status: query.Get("status"),
		Limit:  limit,
		Cursor: query.Get("cursor"),
	})
	if err != nil {
		s.handleError(w, r, err, "failed to list jobs")
		return
	}

	resp := JobListResponse{
		Items:     page.Items,
		RequestID: logger.RequestIDFromContext(r.Context()),
	}
	if page.NextCursor != "" {
		resp.NextCursor = &page.NextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetJob handles GET /jobs/{id}
func (s *Server) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.queue.Status(r.PathValue("id"))
	if err != nil {
		s.handleError(w, r, err, "failed to get job")
		return
	}
	writeJSON(w, http.StatusOK, JobStatusResponse{
		JobView:   view,
		RequestID: logger.RequestIDFromContext(r.Context()),
	})
}

// HandleCancelJob handles POST /jobs/{id}/cancel
func (s *Server) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	view, err := s.queue.Cancel(jobID)
	if err != nil {
		s.handleError(w, r, err, "failed to cancel job")
		return
	}

	s.requestLogger(r).Infow("Job canceled", logger.FieldJobID, jobID, logger.FieldStatus, view.Status)
	writeJSON(w, http.StatusOK, JobStatusResponse{
		JobView:   view,
		RequestID: logger.RequestIDFromContext(r.Context()),
	})
}

// HandleJobResult handles GET /jobs/{id}/result.
// Object results are returned with "jobId" merged in (and "requestId" when
// the result has none); other results are wrapped under "result".
func (s *Server) HandleJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	result, err := s.queue.Result(jobID)
	if err != nil {
		s.handleError(w, r, err, "failed to get job result")
		return
	}

	requestID := logger.RequestIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, mergeResult(jobID, requestID, result))
}

// mergeResult tags a stored result with its job id
func mergeResult(jobID, requestID string, result json.RawMessage) interface{} {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(result, &fields); err != nil || fields == nil {
		return rawResult{JobID: jobID, Result: result, RequestID: requestID}
	}

	fields["jobId"], _ = json.Marshal(jobID)
	if _, ok := fields["requestId"]; !ok {
		fields["requestId"], _ = json.Marshal(requestID)
	}
	return fields
}
