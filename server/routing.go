package server

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/jobd/errors"
	"github.com/teranos/jobd/logger"
)

// setupRoutes configures all HTTP handlers
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.HandleHealth)
	s.mux.HandleFunc("POST /detect/objects", s.HandleDetectObjects)
	s.mux.HandleFunc("POST /jobs", s.HandleCreateJob)
	s.mux.HandleFunc("GET /jobs", s.HandleListJobs)
	s.mux.HandleFunc("GET /jobs/{id}", s.HandleGetJob)
	s.mux.HandleFunc("POST /jobs/{id}/cancel", s.HandleCancelJob)
	s.mux.HandleFunc("GET /jobs/{id}/result", s.HandleJobResult)
	s.mux.HandleFunc("GET /ws/jobs", s.HandleJobsWebSocket)
	s.mux.HandleFunc("/", s.handleNotFound)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "not_found", "Not Found",
		map[string]interface{}{"path": r.URL.Path})
}

// requestIDMiddleware assigns every request an id, honouring a caller
// supplied X-Request-ID, and echoes it in the response header.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), requestID)))
	})
}

// loggingMiddleware logs one line per request
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log := s.requestLogger(r)
		fields := []interface{}{
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldRemote, r.RemoteAddr,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		}
		if rec.status >= http.StatusInternalServerError {
			log.Warnw("HTTP request", fields...)
		} else {
			log.Debugw("HTTP request", fields...)
		}
	})
}

// corsMiddleware adds CORS headers using the configured allowed origins
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			if s.allowsAnyOrigin() {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if s.checkOrigin(r) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware applies the per-client token bucket. The health check
// is exempt so orchestrators never see 429.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		client := clientKey(r)
		if !s.limiter.Allow(client) {
			s.requestLogger(r).Infow("Rate limit exceeded", logger.FieldRemote, client)
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, codeRateLimited, "Too many requests",
				map[string]interface{}{"client": client})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowsAnyOrigin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.allowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// checkOrigin validates a browser origin against server.allowed_origins.
// Prefix matching allows any port on a configured host.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Allow requests with no origin header (CLI clients, tests)
	if origin == "" {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rr *statusRecorder) WriteHeader(code int) {
	if !rr.wroteHeader {
		rr.status = code
		rr.wroteHeader = true
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *statusRecorder) Write(b []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	return rr.ResponseWriter.Write(b)
}

// Hijack lets the WebSocket upgrader take over the connection
func (rr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rr.status = http.StatusSwitchingProtocols
	rr.wroteHeader = true
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController
func (rr *statusRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}
