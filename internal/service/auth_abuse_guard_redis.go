package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// The failure script advances the counter and derives the cooldown in one
// atomic step, so concurrent failed logins cannot lose increments.
var authAbuseFailureScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local base = tonumber(ARGV[2])
local mult = tonumber(ARGV[3])
local cap = tonumber(ARGV[4])
local reset = tonumber(ARGV[5])
local free = tonumber(ARGV[6])

local fails = tonumber(redis.call("HGET", KEYS[1], "fail_count") or "0")
local last = tonumber(redis.call("HGET", KEYS[1], "last_failure_ms") or "0")

if last == 0 or (now - last) > reset then
  fails = 0
end
fails = fails + 1

local delay = 0
if fails > free then
  delay = math.floor(base * (mult ^ (fails - free - 1)))
  if delay > cap then
    delay = cap
  end
  if delay < 1 then
    delay = 1
  end
end

redis.call("HSET", KEYS[1],
  "fail_count", tostring(fails),
  "last_failure_ms", tostring(now),
  "cooldown_until_ms", tostring(now + delay))
redis.call("PEXPIRE", KEYS[1], reset + delay + 60000)
return delay
`)

// RedisAuthAbuseGuard shares failure counters across instances. Identity and
// IP are tracked as independent dimensions; the longer cooldown of the two
// wins.
type RedisAuthAbuseGuard struct {
	client redis.UniversalClient
	prefix string
	policy AuthAbusePolicy
}

func NewRedisAuthAbuseGuard(client redis.UniversalClient, prefix string, policy AuthAbusePolicy) *RedisAuthAbuseGuard {
	if prefix == "" {
		prefix = "auth_abuse"
	}
	return &RedisAuthAbuseGuard{
		client: client,
		prefix: prefix,
		policy: normalizeAuthAbusePolicy(policy),
	}
}

func (g *RedisAuthAbuseGuard) Check(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	now := time.Now().UTC()
	var worst time.Duration
	for _, key := range g.dimensionKeys(scope, identity, ip) {
		delay, err := g.remainingCooldown(ctx, key, now)
		if err != nil {
			return 0, err
		}
		if delay > worst {
			worst = delay
		}
	}
	return worst, nil
}

func (g *RedisAuthAbuseGuard) RegisterFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	nowMS := time.Now().UTC().UnixMilli()
	var worst time.Duration
	for _, key := range g.dimensionKeys(scope, identity, ip) {
		delay, err := g.recordFailure(ctx, key, nowMS)
		if err != nil {
			return 0, err
		}
		if delay > worst {
			worst = delay
		}
	}
	return worst, nil
}

func (g *RedisAuthAbuseGuard) Reset(ctx context.Context, scope AuthAbuseScope, identity, ip string) error {
	return g.client.Del(ctx, g.dimensionKeys(scope, identity, ip)...).Err()
}

func (g *RedisAuthAbuseGuard) recordFailure(ctx context.Context, key string, nowMS int64) (time.Duration, error) {
	result, err := authAbuseFailureScript.Run(
		ctx,
		g.client,
		[]string{key},
		nowMS,
		g.policy.BaseDelay.Milliseconds(),
		g.policy.Multiplier,
		g.policy.MaxDelay.Milliseconds(),
		g.policy.ResetWindow.Milliseconds(),
		g.policy.FreeAttempts,
	).Result()
	if err != nil {
		return 0, err
	}
	delayMS, err := redisInt64(result)
	if err != nil {
		return 0, err
	}
	if delayMS < 0 {
		delayMS = 0
	}
	return time.Duration(delayMS) * time.Millisecond, nil
}

func (g *RedisAuthAbuseGuard) remainingCooldown(ctx context.Context, key string, now time.Time) (time.Duration, error) {
	values, err := g.client.HMGet(ctx, key, "last_failure_ms", "cooldown_until_ms").Result()
	if err != nil {
		return 0, err
	}
	if len(values) != 2 || values[0] == nil || values[1] == nil {
		return 0, nil
	}
	lastFailureMS, err := redisInt64(values[0])
	if err != nil {
		return 0, err
	}
	cooldownUntilMS, err := redisInt64(values[1])
	if err != nil {
		return 0, err
	}

	nowMS := now.UnixMilli()
	switch {
	case nowMS-lastFailureMS > g.policy.ResetWindow.Milliseconds():
		return 0, nil
	case cooldownUntilMS <= nowMS:
		return 0, nil
	default:
		return time.Duration(cooldownUntilMS-nowMS) * time.Millisecond, nil
	}
}

// dimensionKeys digests the raw identity and IP, so neither appears in redis.
func (g *RedisAuthAbuseGuard) dimensionKeys(scope AuthAbuseScope, identity, ip string) []string {
	digest := func(v string) string {
		sum := sha256.Sum256([]byte(v))
		return hex.EncodeToString(sum[:])
	}
	return []string{
		fmt.Sprintf("%s:%s:id:%s", g.prefix, scope, digest(normalizeAuthIdentity(identity))),
		fmt.Sprintf("%s:%s:ip:%s", g.prefix, scope, digest(normalizeAuthIP(ip))),
	}
}

func redisInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("redis response overflows int64")
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis response type %T", v)
	}
}
