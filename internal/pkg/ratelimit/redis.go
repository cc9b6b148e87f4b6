package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares fixed windows across processes with INCR + EXPIRE.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	period time.Duration
}

// NewRedisLimiter allows limit calls per key in each period.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		period: period,
	}
}

// Allow counts one call for key and reports whether it is within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	bucket := time.Now().UnixNano() / int64(l.period)
	k := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.period)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return incr.Val() <= int64(l.limit), nil
}
