package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientIdleTTL is how long an unused per-client bucket is kept
const clientIdleTTL = 5 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter is a token bucket per remote host. A zero rate disables it.
type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientBucket
	now     func() time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	return &clientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

// SetLimit changes the rate for every client, existing buckets included
func (l *clientLimiter) SetLimit(perSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = rate.Limit(perSecond)
	l.burst = burst
	for _, b := range l.clients {
		b.limiter.SetLimit(l.limit)
		b.limiter.SetBurst(burst)
	}
}

// Allow reports whether client may make a request now
func (l *clientLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit <= 0 {
		return true
	}

	now := l.now()
	b, ok := l.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Prune drops buckets idle for longer than clientIdleTTL
func (l *clientLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-clientIdleTTL)
	pruned := 0
	for client, b := range l.clients {
		if b.lastSeen.Before(cutoff) {
			delete(l.clients, client)
			pruned++
		}
	}
	return pruned
}

// clientKey identifies the caller by remote host
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
