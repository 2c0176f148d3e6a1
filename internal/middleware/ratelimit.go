// Package middleware provides HTTP middleware for the status API.
package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client token bucket. Sync submissions
// are cheap to accept but expensive to run, so the API caps how fast any
// single client can hit it.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained refill rate.
	RequestsPerSecond float64
	// Burst is the bucket capacity.
	Burst int
}

const (
	// sweepInterval bounds how often idle buckets are scanned for eviction.
	sweepInterval = 5 * time.Minute
	// clientTTL is how long an idle client keeps its bucket.
	clientTTL = 10 * time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// limiterPool holds one token bucket per client IP. Idle buckets are swept
// inline on the request path, so the pool owns no goroutine and needs no
// shutdown hook.
type limiterPool struct {
	cfg     RateLimitConfig
	clients sync.Map // map[string]*clientBucket

	mu        sync.Mutex
	lastSweep time.Time
	now       func() time.Time
}

// RateLimiter enforces a per-client-IP token bucket. Rejected requests get
// 429 with a Retry-After hint.
func RateLimiter(cfg RateLimitConfig) func(http.Handler) http.Handler {
	p := &limiterPool{cfg: cfg, now: time.Now}
	return p.middleware
}

func (p *limiterPool) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := p.bucketFor(clientIP(r))

		reservation := limiter.Reserve()
		if !reservation.OK() {
			writeTooManyRequests(w, 0)
			return
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			writeTooManyRequests(w, int(delay.Seconds())+1)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(p.cfg.Burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		next.ServeHTTP(w, r)
	})
}

func (p *limiterPool) bucketFor(ip string) *rate.Limiter {
	p.maybeSweep()

	if v, ok := p.clients.Load(ip); ok {
		b := v.(*clientBucket)
		b.lastSeen.Store(p.now().UnixNano())
		return b.limiter
	}
	b := &clientBucket{limiter: rate.NewLimiter(rate.Limit(p.cfg.RequestsPerSecond), p.cfg.Burst)}
	b.lastSeen.Store(p.now().UnixNano())
	p.clients.Store(ip, b)
	return b.limiter
}

// maybeSweep evicts buckets idle longer than clientTTL, at most once per
// sweepInterval.
func (p *limiterPool) maybeSweep() {
	p.mu.Lock()
	if p.now().Sub(p.lastSweep) < sweepInterval {
		p.mu.Unlock()
		return
	}
	p.lastSweep = p.now()
	p.mu.Unlock()

	cutoff := p.now().Add(-clientTTL).UnixNano()
	p.clients.Range(func(key, value any) bool {
		if value.(*clientBucket).lastSeen.Load() < cutoff {
			p.clients.Delete(key)
		}
		return true
	})
}

// clientIP strips the port from RemoteAddr. X-Forwarded-For is untrusted
// and ignored so the limit cannot be bypassed with a spoofed header.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    http.StatusTooManyRequests,
		"message": "rate limit exceeded",
	})
}
