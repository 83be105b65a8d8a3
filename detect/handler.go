package detect

import (
	"context"
	"encoding/json"

	"github.com/teranos/jobd/errors"
)

// Handler runs detect-objects jobs for the async queue
type Handler struct {
	detector *Detector
}

// NewHandler wraps a detector as a job handler
func NewHandler(detector *Detector) *Handler {
	return &Handler{detector: detector}
}

// Name returns the task kind
func (h *Handler) Name() string {
	return TaskName
}

// Validate rejects payloads that could never run: malformed JSON or a
// missing image. Image decoding is left to execution.
func (h *Handler) Validate(payload json.RawMessage) error {
	_, err := ParseRequest(payload)
	return err
}

// Execute decodes the payload, runs detection and returns the JSON response
func (h *Handler) Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	req, err := ParseRequest(payload)
	if err != nil {
		return nil, err
	}

	resp, err := h.detector.Detect(ctx, req)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode detection result")
	}
	return out, nil
}

// ParseRequest decodes and validates a detect-objects payload
func ParseRequest(payload json.RawMessage) (Request, error) {
	var req Request
	if len(payload) == 0 {
		return req, errors.New("imageBase64 is required")
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, errors.Wrap(err, "invalid detect-objects payload")
	}
	if req.ImageBase64 == "" {
		return req, errors.New("imageBase64 is required")
	}
	if req.DebugSleepMs > MaxDebugSleepMs {
		return req, errors.Newf("debugSleepMs must not exceed %d", MaxDebugSleepMs)
	}
	return req, nil
}
