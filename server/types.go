package server

import (
	"encoding/json"
	"time"

	"github.com/teranos/jobd/async"
	"github.com/teranos/jobd/detect"
)

const (
	// ServiceName is reported by the health check
	ServiceName = "jobd"

	// MaxClients is the maximum number of concurrent WebSocket subscribers
	MaxClients = 100

	// MaxRequestBodyBytes bounds JSON request bodies (images arrive inline)
	MaxRequestBodyBytes = 32 << 20

	// RequestIDHeader carries the request id in and out
	RequestIDHeader = "X-Request-ID"
)

// ServerState represents the server lifecycle state
type ServerState int

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Graceful shutdown in progress
	ServerStateStopped                     // Shutdown complete
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"requestId"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status                  string            `json:"status"`
	Service                 string            `json:"service"`
	Version                 string            `json:"version"`
	JobsInMemory            int               `json:"jobsInMemory"`
	IdempotencyKeysInMemory int               `json:"idempotencyKeysInMemory"`
	JobRunTimeoutSec        float64           `json:"jobRunTimeoutSec"`
	JobsTTLSec              float64           `json:"jobsTtlSec"`
	JobsMaxItems            int               `json:"jobsMaxItems"`
	Memory                  async.MemoryStats `json:"memory"`
	RequestID               string            `json:"requestId"`
}

// CreateJobRequest holds the envelope fields of POST /jobs. The remaining
// body fields are the task payload and are handed to the task unchanged.
type CreateJobRequest struct {
	Task           string `json:"task"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// CreateJobResponse acknowledges POST /jobs
type CreateJobResponse struct {
	JobID      string          `json:"jobId"`
	Status     async.JobStatus `json:"status"`
	AcceptedAt time.Time       `json:"acceptedAt"`
	RequestID  string          `json:"requestId"`
}

// JobStatusResponse is returned by GET /jobs/{id} and POST /jobs/{id}/cancel
type JobStatusResponse struct {
	async.JobView
	RequestID string `json:"requestId"`
}

// JobListResponse is returned by GET /jobs
type JobListResponse struct {
	Items      []async.JobView `json:"items"`
	NextCursor *string         `json:"nextCursor"`
	RequestID  string          `json:"requestId"`
}

// DetectResponse is returned by POST /detect/objects
type DetectResponse = detect.Response

// JobResultResponse is a detect-objects result tagged with its job id.
// Results of other tasks are returned as {"jobId", "result", "requestId"}.
type JobResultResponse struct {
	detect.Response
	JobID string `json:"jobId"`
}

// JobEvent is one message on the /ws/jobs stream
type JobEvent struct {
	Type string        `json:"type"` // "job"
	Job  async.JobView `json:"job"`
}

// rawResult is the generic result shape for non-object task results
type rawResult struct {
	JobID     string          `json:"jobId"`
	Result    json.RawMessage `json:"result"`
	RequestID string          `json:"requestId"`
}
