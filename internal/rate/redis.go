package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript increments the window counter unless the limit is reached. The window TTL is set on
// the first hit only (fixed window). Returns {count_after, pttl, allowed}.
var hitScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
  return {current, redis.call("PTTL", KEYS[1]), 0}
end
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {count, redis.call("PTTL", KEYS[1]), 1}
`)

// RedisCounter keeps windows in Redis so every process shares the same budget.
type RedisCounter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCounter creates a counter storing keys under prefix (default "rl:").
func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisCounter{redis: client, prefix: prefix}
}

// Hit implements [Counter].
func (c *RedisCounter) Hit(ctx context.Context, key string, limit int, span time.Duration) (Result, error) {
	out, err := hitScript.Run(ctx, c.redis, []string{c.prefix + key}, limit, span.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(out) != 3 {
		return Result{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	count, pttl, allowed := out[0], out[1], out[2]
	if allowed == 0 {
		retry := time.Duration(pttl) * time.Millisecond
		if pttl < 0 {
			retry = span
		}
		return Result{Allowed: false, RetryAfter: retry}, nil
	}
	return Result{Allowed: true, Remaining: limit - int(count)}, nil
}
