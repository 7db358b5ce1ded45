package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/arena/pkg/auth"
	"github.com/platinummonkey/arena/pkg/observability"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(config *RateLimitConfig) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(config)
	limiter.now = clock.Now
	return limiter, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	config := &RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Second, BurstSize: 2}
	limiter, clock := newTestLimiter(config)

	allowed := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow("user:1") {
			allowed++
		}
	}
	assert.Equal(t, 12, allowed)
	assert.False(t, limiter.Allow("user:1"))

	clock.Advance(time.Second)
	assert.True(t, limiter.Allow("user:1"), "tokens refill after a window")
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})

	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"))
}

func TestRateLimiter_Remaining(t *testing.T) {
	limiter, _ := newTestLimiter(&RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Second, BurstSize: 2})

	assert.Equal(t, 12, limiter.Remaining("k"))
	limiter.Allow("k")
	assert.Equal(t, 11, limiter.Remaining("k"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter, clock := newTestLimiter(&RateLimitConfig{RequestsPerWindow: 10, WindowDuration: 100 * time.Millisecond})

	limiter.Allow("old")
	clock.Advance(time.Second)
	limiter.Allow("fresh")
	limiter.Cleanup()

	limiter.mu.RLock()
	defer limiter.mu.RUnlock()
	assert.NotContains(t, limiter.buckets, "old")
	assert.Contains(t, limiter.buckets, "fresh")
}

func TestRateLimitMiddleware_Handler(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	m := NewRateLimitMiddleware(
		&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute},
		&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute},
		metrics,
	)
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("anonymous keyed by ip", func(t *testing.T) {
		codes := make([]int, 0, 2)
		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.1:1234"
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("authenticated keyed by user", func(t *testing.T) {
		p := auth.NewPrincipal(42, nil, nil)
		var last *httptest.ResponseRecorder
		for i := 0; i < 3; i++ {
			req := withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), p)
			req.RemoteAddr = "10.0.0.1:1234"
			last = httptest.NewRecorder()
			handler.ServeHTTP(last, req)
			if i < 2 {
				assert.Equal(t, http.StatusOK, last.Code)
				assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
			}
		}
		assert.Equal(t, http.StatusTooManyRequests, last.Code)
		assert.Equal(t, "60", last.Header().Get("Retry-After"))
		assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	})

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.RateLimitRejectionsTotal.WithLabelValues("/")))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "10.0.0.2:80", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "5.6.7.8"}, "10.0.0.2:80", "5.6.7.8"},
		{"remote addr", nil, "9.9.9.9:4444", "9.9.9.9"},
		{"remote addr without port", nil, "9.9.9.9", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
