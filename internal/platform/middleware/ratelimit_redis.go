package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the counter, starts the window on the first
// hit, and returns the count with the remaining window in milliseconds.
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// RedisRateLimitStore shares counters across processes.
type RedisRateLimitStore struct {
	client redis.Scripter
	prefix string
}

func NewRedisRateLimitStore(client redis.Scripter, prefix string) *RedisRateLimitStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisRateLimitStore{client: client, prefix: prefix}
}

func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, limit RateLimit) (bool, time.Duration, error) {
	res, err := fixedWindowScript.Run(ctx, s.client,
		[]string{s.prefix + ":" + key},
		limit.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("running rate limit script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit script reply: %v", res)
	}

	count, ttl := res[0], res[1]
	if count <= int64(limit.Requests) {
		return true, 0, nil
	}
	if ttl < 0 {
		ttl = limit.Window.Milliseconds()
	}
	return false, time.Duration(ttl) * time.Millisecond, nil
}
