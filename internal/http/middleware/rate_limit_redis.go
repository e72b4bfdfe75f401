package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// One INCR+PEXPIRE round trip per request keeps every replica counting
// against the same window.
var redisFixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisFixedWindowLimiter shares one fixed window across replicas. Pair it
// with FailOpen or FailClosed depending on how the route should degrade when
// redis is unreachable.
type RedisFixedWindowLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisFixedWindowLimiter(client redis.UniversalClient, prefix string) *RedisFixedWindowLimiter {
	if prefix == "" {
		prefix = "resumekit:rl"
	}
	return &RedisFixedWindowLimiter{client: client, prefix: prefix}
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)
	result, err := redisFixedWindowScript.Run(ctx, l.client, []string{redisKey}, window.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected redis response %T", result)
	}
	current, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected counter type %T", values[0])
	}
	ttlMS, ok := values[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected ttl type %T", values[1])
	}

	if current > int64(limit) {
		retryAfter := time.Duration(ttlMS) * time.Millisecond
		if retryAfter < 0 {
			retryAfter = window
		}
		return false, retryAfter, nil
	}
	return true, 0, nil
}
