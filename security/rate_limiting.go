package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per caller in fixed Redis windows.
type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &RateLimiter{redis: redisClient, limit: int64(perMinute), window: time.Minute}
}

func rateLimitKey(id string) string {
	return fmt.Sprintf("ratelimit:%s", id)
}

// Allow records one request for id and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, id string) (bool, error) {
	key := rateLimitKey(id)
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expiry failed: %w", err)
		}
	}
	return count <= r.limit, nil
}

// callerID rate limits authenticated callers by record id, anonymous ones by IP.
func callerID(e *core.RequestEvent) string {
	if e.Auth != nil {
		return "user:" + e.Auth.Id
	}
	return "ip:" + e.RealIP()
}

// Middleware rejects suspicious user agents and callers over their limit.
// Redis failures let the request through.
func (r *RateLimiter) Middleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return apis.NewForbiddenError("Access denied", nil)
		}

		allowed, err := r.Allow(e.Request.Context(), callerID(e))
		if err != nil {
			slog.Warn("rate limiter unavailable", "error", err)
			return e.Next()
		}
		if !allowed {
			return apis.NewApiError(http.StatusTooManyRequests, "Too many requests", nil)
		}
		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
