package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/arena/pkg/observability"
)

// DistributedRateLimiter implements fixed-window rate limiting in Redis so that
// limits are shared across server instances.
type DistributedRateLimiter struct {
	redis  redis.Cmdable
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(client redis.Cmdable, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  client,
		config: config,
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow counts one request against key. On a Redis error it reports the
// request as allowed together with the error.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.key(key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// Remaining returns the number of remaining requests in the window
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Get(ctx, rl.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return rl.config.RequestsPerWindow, nil
	} else if err != nil {
		return 0, err
	}

	return max(rl.config.RequestsPerWindow-count, 0), nil
}

// TTL returns the time until the rate limit window resets
func (rl *DistributedRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, rl.key(key)).Result()
}

// Reset clears the rate limit for a key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}

// DistributedRateLimitMiddleware applies a DistributedRateLimiter to a route.
type DistributedRateLimitMiddleware struct {
	limiter         *DistributedRateLimiter
	metrics         *observability.Metrics
	fallbackEnabled bool
}

// NewDistributedRateLimitMiddleware creates a new Redis-backed rate limit middleware.
// It fails open on Redis errors unless SetFallbackEnabled(false) is called.
func NewDistributedRateLimitMiddleware(limiter *DistributedRateLimiter, metrics *observability.Metrics) *DistributedRateLimitMiddleware {
	return &DistributedRateLimitMiddleware{
		limiter:         limiter,
		metrics:         metrics,
		fallbackEnabled: true,
	}
}

// SetFallbackEnabled controls whether to fail open (true) or closed (false) on Redis errors
func (m *DistributedRateLimitMiddleware) SetFallbackEnabled(enabled bool) {
	m.fallbackEnabled = enabled
}

// Handler wraps an HTTP handler with distributed rate limiting
func (m *DistributedRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key, _ := rateLimitKey(r)
		config := m.limiter.config

		allowed, err := m.limiter.Allow(ctx, key)
		if err != nil {
			observability.FromContext(ctx).WithError(err).Warn("distributed rate limiter unavailable")
			if m.fallbackEnabled {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
			return
		}

		ttl, err := m.limiter.TTL(ctx, key)
		if err != nil || ttl <= 0 {
			ttl = config.WindowDuration
		}
		reset := time.Now().Add(ttl)

		if !allowed {
			m.metrics.RecordRateLimited(observability.RouteLabel(r))
			rateLimitExceeded(w, config, ttl, reset)
			return
		}

		if remaining, err := m.limiter.Remaining(ctx, key); err == nil {
			setRateLimitHeaders(w, config.RequestsPerWindow, remaining, reset)
		}
		next.ServeHTTP(w, r)
	})
}

// HealthCheck verifies Redis connectivity for rate limiting
func (m *DistributedRateLimitMiddleware) HealthCheck(ctx context.Context) error {
	return m.limiter.redis.Ping(ctx).Err()
}
