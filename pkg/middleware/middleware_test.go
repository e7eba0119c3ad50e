package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VictorLirio/nimbus-api/pkg/resilience"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestRateLimiter_PerKeyBudget(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, HeaderOrIP("X-User-ID"))
	defer rl.Shutdown()
	h := rl.Middleware(ok())

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
		if user != "" {
			req.Header.Set("X-User-ID", user)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("u1"))
	assert.Equal(t, http.StatusOK, do("u1"))
	assert.Equal(t, http.StatusTooManyRequests, do("u1"))
	assert.Equal(t, http.StatusOK, do("u2"), "buckets are per user")
	assert.Equal(t, http.StatusOK, do(""), "anonymous callers fall back to the address")
}

func TestRateLimiter_CleanupDropsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	defer rl.Shutdown()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return base }
	rl.Allow("a")
	rl.now = func() time.Time { return base.Add(10 * time.Minute) }
	rl.Allow("b")
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "b")
}

func TestRemoteIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:53211"
	assert.Equal(t, "10.0.0.7", RemoteIP(req))
	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", RemoteIP(req))
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	NewSecurityHeaders(false).Middleware(ok()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))

	rec = httptest.NewRecorder()
	NewSecurityHeaders(true).Middleware(ok()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestTimeout_SetsDeadlineOnce(t *testing.T) {
	var deadline time.Time
	h := Timeout(resilience.TestTimeoutConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, ok := r.Context().Deadline()
		require.True(t, ok)
		deadline = d
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, time.Second, "caller deadline is kept")
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	Chain(ok(), mw("outer"), mw("inner")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
}
