package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// RemoteIP keys requests by client address without the port.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HeaderOrIP keys by the named header, falling back to the client address
// for anonymous requests.
func HeaderOrIP(header string) KeyFunc {
	return func(r *http.Request) string {
		if v := r.Header.Get(header); v != "" {
			return header + ":" + v
		}
		return RemoteIP(r)
	}
}

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter is a token bucket per key with idle-entry cleanup
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	rate     rate.Limit
	burst    int
	maxSize  int
	idle     time.Duration
	key      KeyFunc
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter allows requestsPerSecond per key with the given burst
func NewRateLimiter(requestsPerSecond float64, burst int, key KeyFunc) *RateLimiter {
	if key == nil {
		key = RemoteIP
	}
	rl := &RateLimiter{
		limiters: make(map[string]*keyLimiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		maxSize:  10000,
		idle:     5 * time.Minute,
		key:      key,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.idle)
	for k, l := range rl.limiters {
		if l.lastAccess.Before(cutoff) {
			delete(rl.limiters, k)
		}
	}
}

// Shutdown stops the cleanup goroutine
func (rl *RateLimiter) Shutdown() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow reports whether a request under key fits the budget.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if l, ok := rl.limiters[key]; ok {
		l.lastAccess = now
		return l.limiter
	}

	if len(rl.limiters) >= rl.maxSize {
		var oldest string
		var oldestAt time.Time
		for k, l := range rl.limiters {
			if oldest == "" || l.lastAccess.Before(oldestAt) {
				oldest, oldestAt = k, l.lastAccess
			}
		}
		delete(rl.limiters, oldest)
	}

	l := &keyLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst), lastAccess: now}
	rl.limiters[key] = l
	return l.limiter
}

// Middleware rejects requests over budget with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(rl.key(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
