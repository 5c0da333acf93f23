package ratelimit

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisRateLimiter implements RateLimiter using Redis for distributed rate
// limiting across multiple gateway instances. Uses atomic INCR+EXPIRE so
// concurrent instances share the same window count.
//
// Key layout: "ratelimit:" + key, holding the request count for the current
// window. TTL on the key doubles as the fixed-window reset and as cleanup.
//
// Like DynamoDBRateLimiter this is a discrete fixed window, not a
// continuously-refilling bucket, so BurstSize doesn't apply: the cap is
// always RequestsPerWindow.
type RedisRateLimiter struct {
	client redis.UniversalClient
	config Config
}

// NewRedisRateLimiter creates a new Redis-backed rate limiter.
func NewRedisRateLimiter(client redis.UniversalClient, cfg Config) (*RedisRateLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	return &RedisRateLimiter{client: client, config: cfg}, nil
}

// Allow checks if a request should be allowed for the given key.
// Implements fail-open policy: Redis errors return allowed=true with the
// error logged, since a rate limiter outage should never block traffic.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := "ratelimit:" + key

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		log.Printf("ratelimit: redis error (failing open): %v", err)
		return true, 0, err
	}

	if count == 1 {
		// First request in this window - start the TTL clock.
		if err := r.client.Expire(ctx, redisKey, r.config.Window).Err(); err != nil {
			log.Printf("ratelimit: redis expire error (failing open): %v", err)
			return true, 0, err
		}
	}

	if count > int64(r.config.RequestsPerWindow) {
		ttl, err := r.client.TTL(ctx, redisKey).Result()
		if err != nil || ttl < 0 {
			ttl = r.config.Window
		}
		return false, ttl, nil
	}

	return true, 0, nil
}

// Close releases the underlying Redis client.
func (r *RedisRateLimiter) Close() error {
	return r.client.Close()
}

var _ RateLimiter = (*RedisRateLimiter)(nil)
