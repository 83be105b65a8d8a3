// Package server exposes the job queue and the synchronous detector over
// HTTP, plus a WebSocket stream of job status changes.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teranos/jobd/am"
	"github.com/teranos/jobd/async"
	"github.com/teranos/jobd/detect"
	"github.com/teranos/jobd/errors"
	"github.com/teranos/jobd/logger"
	"github.com/teranos/jobd/version"
)

// Server is the jobd HTTP API
type Server struct {
	queue    *async.Queue
	detector *detect.Detector
	logger   *zap.SugaredLogger
	limiter  *clientLimiter
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	version  string

	mu             sync.RWMutex
	allowedOrigins []string
	clients        map[*wsClient]bool
	pendingClients int // slots reserved by handshakes still upgrading

	listLimit atomic.Int32
	state     atomic.Int32

	httpServer *http.Server

	// Lifecycle of background goroutines (limiter pruning, WebSocket pumps)
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Server
type Option func(*Server)

// WithLogger overrides the server logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion overrides the version reported by /health
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New wires the routes for queue and detector using cfg
func New(queue *async.Queue, detector *detect.Detector, cfg *am.Config, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		queue:          queue,
		detector:       detector,
		logger:         logger.ComponentLogger("server"),
		limiter:        newClientLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst),
		mux:            http.NewServeMux(),
		version:        version.Get().Version,
		allowedOrigins: cfg.Server.AllowedOrigins,
		clients:        make(map[*wsClient]bool),
		ctx:            ctx,
		cancel:         cancel,
	}
	s.listLimit.Store(int32(cfg.Jobs.DefaultListLimit))
	for _, opt := range opts {
		opt(s)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.setupRoutes()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pruneLimiter()
	}()

	return s
}

// Handler returns the root handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.requestIDMiddleware(s.loggingMiddleware(s.corsMiddleware(s.rateLimitMiddleware(s.mux))))
}

// Serve accepts connections on ln until Shutdown is called
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Infow("HTTP server listening", logger.FieldAddress, ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// ListenAndServe listens on addr and serves until Shutdown
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ln)
}

// ApplyConfig updates the settings that can change at runtime
func (s *Server) ApplyConfig(cfg *am.Config) {
	s.limiter.SetLimit(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst)
	s.listLimit.Store(int32(cfg.Jobs.DefaultListLimit))

	s.mu.Lock()
	s.allowedOrigins = cfg.Server.AllowedOrigins
	s.mu.Unlock()

	s.logger.Infow("Server config applied",
		"rate_limit_per_second", cfg.Server.RateLimitPerSecond,
		"rate_limit_burst", cfg.Server.RateLimitBurst,
		"default_list_limit", cfg.Jobs.DefaultListLimit)
}

// getState returns the current server state
func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state
func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", stateString(newState))
}

// stateString returns human-readable state name
func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Shutdown stops accepting requests, closes WebSocket subscribers and waits
// for in-flight requests until ctx expires. The queue is not closed here.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()

	var shutdownErr error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "http server shutdown")
		}
	}

	// Hijacked WebSocket connections are not tracked by http.Server
	s.cancel()
	s.closeClients()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("All server goroutines stopped cleanly")
	case <-ctx.Done():
		s.logger.Warnw("Server goroutine shutdown timed out")
		if shutdownErr == nil {
			shutdownErr = ctx.Err()
		}
	}

	s.setState(ServerStateStopped)
	return shutdownErr
}

// pruneLimiter forgets idle rate-limit buckets
func (s *Server) pruneLimiter() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.limiter.Prune(); n > 0 {
				s.logger.Debugw("Pruned idle rate-limit buckets", logger.FieldCount, n)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// requestLogger returns the server logger tagged with the request id
func (s *Server) requestLogger(r *http.Request) *zap.SugaredLogger {
	return logger.FromContext(r.Context(), s.logger)
}
