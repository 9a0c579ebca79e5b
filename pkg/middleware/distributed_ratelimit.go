package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter implements rate limiting using Redis counters so
// limits hold across multiple instances. The limit tier is supplied per
// call because callers on different plans share one limiter.
type DistributedRateLimiter struct {
	redis  *redis.Client
	prefix string
	window time.Duration
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter.
func NewDistributedRateLimiter(redisClient *redis.Client, prefix string) *DistributedRateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &DistributedRateLimiter{
		redis:  redisClient,
		prefix: prefix,
		window: rateLimitWindow,
	}
}

// Allow consumes one request for the key and reports whether the caller
// is within limit, along with the remaining allowance in the window.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, int, error) {
	redisKey := rl.prefix + ":" + key

	// INCR and EXPIRE run in one pipeline round trip.
	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to update rate limit counter: %w", err)
	}

	capacity := int64(limit.capacity())
	count := incr.Val()
	remaining := capacity - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= capacity, int(remaining), nil
}

// Remaining returns the unconsumed allowance for a key without taking one.
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string, limit Limit) (int, error) {
	redisKey := rl.prefix + ":" + key

	count, err := rl.redis.Get(ctx, redisKey).Int()
	if err == redis.Nil {
		return limit.capacity(), nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}

	remaining := limit.capacity() - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// TTL returns the time until the rate limit window resets for a key.
func (rl *DistributedRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, rl.prefix+":"+key).Result()
}

// Reset clears the counter for a key.
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.prefix+":"+key).Err()
}
