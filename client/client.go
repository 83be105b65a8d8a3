// Package client is a typed Go client for the jobd HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/jobd/async"
	"github.com/teranos/jobd/detect"
	"github.com/teranos/jobd/errors"
	"github.com/teranos/jobd/internal/httpclient"
	"github.com/teranos/jobd/server"
	"github.com/teranos/jobd/version"
)

// DefaultTimeout bounds each API call
const DefaultTimeout = 30 * time.Second

// Client talks to one jobd server
type Client struct {
	baseURL *url.URL
	http    *httpclient.Client
}

// Option configures a Client
type Option func(*options)

type options struct {
	httpClient *http.Client
	timeout    time.Duration
}

// WithHTTPClient uses hc as the underlying transport (tests pass
// httptest.Server.Client here)
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// New creates a client for the server at baseURL (e.g. http://localhost:8000)
func New(baseURL string, opts ...Option) (*Client, error) {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: o.timeout}
	}
	transport := httpclient.Wrap(hc, httpclient.Options{
		UserAgent: "jobd-client/" + version.Get().Version,
	})

	u, err := transport.ValidateURL(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid server URL %s", baseURL)
	}
	return &Client{baseURL: u, http: transport}, nil
}

// APIError is a decoded error envelope. It unwraps to the errors sentinel
// matching its status, so errors.Is(err, errors.ErrNotFound) works.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Details    map[string]interface{}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d, request %s)", e.Code, e.Message, e.StatusCode, e.RequestID)
}

// Unwrap maps the HTTP status back to a sentinel
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return errors.ErrNotFound
	case http.StatusConflict:
		return errors.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errors.ErrInvalidRequest
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return errors.ErrUnavailable
	default:
		return nil
	}
}

// SubmitRequest is a job submission. Payload fields are sent alongside
// task and idempotencyKey in the request body.
type SubmitRequest struct {
	Task           string
	IdempotencyKey string
	Payload        map[string]interface{}
}

// ListParams selects a page of jobs; zero values use the server defaults
type ListParams struct {
	Status string
	Limit  int
	Cursor string
}

// Health calls GET /health
func (c *Client) Health(ctx context.Context) (*server.HealthResponse, error) {
	var out server.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckCompatibility compares this client's version with the server's
func (c *Client) CheckCompatibility(ctx context.Context) error {
	health, err := c.Health(ctx)
	if err != nil {
		return err
	}
	return version.CheckCompatible(version.Get().Version, health.Version)
}

// Submit calls POST /jobs
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*server.CreateJobResponse, error) {
	body := make(map[string]interface{}, len(req.Payload)+2)
	for k, v := range req.Payload {
		body[k] = v
	}
	body["task"] = req.Task
	if req.IdempotencyKey != "" {
		body["idempotencyKey"] = req.IdempotencyKey
	}

	var out server.CreateJobResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status calls GET /jobs/{id}
func (c *Client) Status(ctx context.Context, jobID string) (*server.JobStatusResponse, error) {
	var out server.JobStatusResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel calls POST /jobs/{id}/cancel
func (c *Client) Cancel(ctx context.Context, jobID string) (*server.JobStatusResponse, error) {
	var out server.JobStatusResponse
	if err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/cancel", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List calls GET /jobs
func (c *Client) List(ctx context.Context, params ListParams) (*server.JobListResponse, error) {
	query := url.Values{}
	if params.Status != "" {
		query.Set("status", params.Status)
	}
	if params.Limit != 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Cursor != "" {
		query.Set("cursor", params.Cursor)
	}

	var out server.JobListResponse
	if err := c.do(ctx, http.MethodGet, "/jobs", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Result calls GET /jobs/{id}/result and returns the raw JSON body
func (c *Client) Result(ctx context.Context, jobID string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/result", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Detect calls POST /detect/objects
func (c *Client) Detect(ctx context.Context, req detect.Request) (*detect.Response, error) {
	var out detect.Response
	if err := c.do(ctx, http.MethodPost, "/detect/objects", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Wait polls Status until the job is terminal or ctx expires
func (c *Client) Wait(ctx context.Context, jobID string, interval time.Duration) (*server.JobStatusResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if status.Status.IsTerminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, errors.Wrapf(ctx.Err(), "waiting for job %s", jobID)
		case <-ticker.C:
		}
	}
}

// Watch streams job status changes from GET /ws/jobs to fn until ctx is
// done, fn returns an error or the server closes the stream. A clean close
// by either side returns nil.
func (c *Client) Watch(ctx context.Context, fn func(async.JobView) error) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/jobs"
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	header.Set("User-Agent", "jobd-client/"+version.Get().Version)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if resp != nil {
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)
			return decodeError(resp, data)
		}
		return errors.Wrapf(err, "failed to connect to %s", u.String())
	}
	defer conn.Close()

	// Unblock ReadJSON when ctx ends
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		var event server.JobEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "job stream interrupted")
		}
		if event.Type != "job" {
			continue
		}
		if err := fn(event.Job); err != nil {
			return err
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode >= 300 {
		return decodeError(resp, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "failed to decode %s %s response", method, path)
	}
	return nil
}

func decodeError(resp *http.Response, data []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var envelope server.ErrorResponse
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Code != "" {
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Message
		apiErr.RequestID = envelope.RequestID
		apiErr.Details = envelope.Details
	} else {
		apiErr.Code = "http_error"
		apiErr.Message = strings.TrimSpace(string(data))
		apiErr.RequestID = resp.Header.Get(server.RequestIDHeader)
	}
	return apiErr
}

// AsAPIError extracts an *APIError from err's chain
func AsAPIError(err error) (*APIError, bool) {
	var e *APIError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
