package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript checks and increments a fixed window counter in one step.
// It returns {count, allowed, pttl}. A key at or over the limit is left
// untouched.
const takeScript = `
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return {current, 0, redis.call('PTTL', KEYS[1])}
end
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {count, 1, redis.call('PTTL', KEYS[1])}
`

// RedisCounter keeps windows in Redis so every replica shares one count.
type RedisCounter struct {
	client redis.Scripter
	script *redis.Script
}

// NewRedisCounter creates a counter backed by client.
func NewRedisCounter(client redis.Scripter) *RedisCounter {
	return &RedisCounter{
		client: client,
		script: redis.NewScript(takeScript),
	}
}

// Take implements Counter.
func (c *RedisCounter) Take(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	vals, err := c.script.Run(ctx, c.client, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("redis take %s: %w", key, err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("redis take %s: unexpected reply length %d", key, len(vals))
	}

	ttl := time.Duration(vals[2]) * time.Millisecond
	if ttl < 0 {
		ttl = 0
	}

	return Result{
		Count:   vals[0],
		Allowed: vals[1] == 1,
		TTL:     ttl,
	}, nil
}
