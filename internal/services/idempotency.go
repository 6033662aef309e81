package services

import (
	"context"
	"fmt"
	"time"

	"ticket-workflow/internal/status"

	"github.com/redis/go-redis/v9"
)

const defaultIdempotencyTTL = 24 * time.Hour

// RequestGuard de-duplicates client retries of the same placement request.
type RequestGuard interface {
	// Acquire claims the request id and returns status.ErrDuplicateRequest
	// when it was already claimed.
	Acquire(ctx context.Context, userID, requestID string) error
	// Forget drops a claim so a failed placement can be retried.
	Forget(ctx context.Context, userID, requestID string) error
}

type RedisRequestGuard struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewRedisRequestGuard(redisClient *redis.Client, ttl time.Duration) *RedisRequestGuard {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &RedisRequestGuard{Redis: redisClient, TTL: ttl}
}

func idempotencyKey(userID, requestID string) string {
	return fmt.Sprintf("idempotency:order:%s:%s", userID, requestID)
}

func (g *RedisRequestGuard) Acquire(ctx context.Context, userID, requestID string) error {
	ok, err := g.Redis.SetNX(ctx, idempotencyKey(userID, requestID), 1, g.TTL).Result()
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return status.ErrDuplicateRequest
	}
	return nil
}

func (g *RedisRequestGuard) Forget(ctx context.Context, userID, requestID string) error {
	return g.Redis.Del(ctx, idempotencyKey(userID, requestID)).Err()
}
