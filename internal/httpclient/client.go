// Package httpclient provides the HTTP transport used by the jobd API client:
// scheme and redirect checks plus retry of rate-limited requests.
package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/jobd/errors"
)

const (
	defaultMaxRedirects = 10
	defaultMaxRetries   = 2
	defaultRetryWait    = 500 * time.Millisecond
	maxRetryWait        = 10 * time.Second
)

// Client wraps http.Client with URL validation and 429 retries
type Client struct {
	*http.Client
	allowedSchemes []string
	maxRedirects   int
	maxRetries     int
	userAgent      string

	// sleep waits between retries; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// Options customises a Client
type Options struct {
	AllowedSchemes []string // Default: ["http", "https"]
	MaxRedirects   *int     // Default: 10
	MaxRetries     *int     // Retries after 429; default 2
	UserAgent      string
}

// New creates a client with the given timeout and options
func New(timeout time.Duration, opts Options) *Client {
	return Wrap(&http.Client{Timeout: timeout}, opts)
}

// Wrap adds validation and retries to an existing http.Client (for example
// the one returned by httptest.Server.Client).
func Wrap(hc *http.Client, opts Options) *Client {
	c := &Client{
		Client:         hc,
		allowedSchemes: []string{"http", "https"},
		maxRedirects:   defaultMaxRedirects,
		maxRetries:     defaultMaxRetries,
		userAgent:      opts.UserAgent,
		sleep:          sleepContext,
	}
	if opts.AllowedSchemes != nil {
		c.allowedSchemes = opts.AllowedSchemes
	}
	if opts.MaxRedirects != nil {
		c.maxRedirects = *opts.MaxRedirects
	}
	if opts.MaxRetries != nil {
		c.maxRetries = *opts.MaxRetries
	}

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}
	return c
}

// validateURL checks the scheme and rejects credentials embedded in the URL
func (c *Client) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range c.allowedSchemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, c.allowedSchemes)
	}
	if u.User != nil {
		return errors.New("URL must not contain credentials")
	}
	if u.Hostname() == "" {
		return errors.New("URL missing hostname")
	}
	return nil
}

// ValidateURL parses and validates a base URL
func (c *Client) ValidateURL(urlStr string) (*url.URL, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Do executes req, retrying when the server answers 429. Requests with a
// body are only retried when the body can be replayed (GetBody is set, as it
// is for bytes and strings readers).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked")
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.Client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= c.maxRetries || !replayable(req) {
			return resp, nil
		}

		wait := retryAfter(resp.Header.Get("Retry-After"), attempt)
		resp.Body.Close()
		if err := c.sleep(req.Context(), wait); err != nil {
			return nil, errors.Wrap(err, "retry wait interrupted")
		}

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, errors.Wrap(err, "failed to replay request body")
			}
			req.Body = body
		}
	}
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// retryAfter honours a Retry-After in seconds, otherwise backs off
// exponentially from defaultRetryWait.
func retryAfter(header string, attempt int) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return min(time.Duration(secs)*time.Second, maxRetryWait)
	}
	return min(defaultRetryWait<<attempt, maxRetryWait)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get issues a GET through Do so validation and retries apply
func (c *Client) Get(urlStr string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "invalid request")
	}
	return c.Do(req)
}
