package rateLimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is a fixed-window counter store.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RateLimiter struct {
	counter Counter
}

func NewRateLimiter(counter Counter) *RateLimiter {
	return &RateLimiter{counter: counter}
}

// Allow reports whether key has made at most rate calls in the current
// period. A counter failure lets the call through.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	n, err := rl.counter.Incr(ctx, "rl:"+key, period)
	if err != nil {
		return true
	}
	return n <= int64(rate)
}

type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
