package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/scoutline/scoutline-backend/internal/platform/logger"
)

/*
Limiter is a per-principal token bucket backed by Redis. Refill and spend
happen in a single Lua script so concurrent gateways never double-spend a
token. Buckets idle out via TTL; a missing bucket is a full one, so expiry
can only ever be generous to the caller.
*/
type Limiter interface {
	Allow(ctx context.Context, scope string, rate float64, burst int) (Decision, error)
}

// Decision reports the outcome of one bucket probe.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is a hint for rejected calls, how long until one token
	// refills. Zero when Allowed.
	RetryAfter time.Duration
}

const bucketTTL = 10 * time.Minute

// tokenBucketScript refills from the stored (tokens, ts) pair, spends one
// token when available, and persists the bucket with a sliding TTL. Time is
// taken from Redis so all gateways share one clock.
var tokenBucketScript = goredis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call('TIME')
local now = tonumber(t[1]) + tonumber(t[2]) / 1000000

local data = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = burst
  ts = now
end

local elapsed = now - ts
if elapsed < 0 then
  elapsed = 0
end
tokens = math.min(burst, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'ts', now)
redis.call('PEXPIRE', key, ttl)

return {allowed, tostring(tokens)}
`)

type limiter struct {
	rdb *goredis.Client
	log *logger.Logger
}

func NewLimiter(rdb *goredis.Client, baseLog *logger.Logger) Limiter {
	return &limiter{
		rdb: rdb,
		log: baseLog.With("service", "RateLimiter"),
	}
}

func (l *limiter) Allow(ctx context.Context, scope string, rate float64, burst int) (Decision, error) {
	if rate <= 0 || burst <= 0 {
		// Unlimited principals skip the bucket entirely.
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	key := "ratelimit:" + scope
	res, err := tokenBucketScript.Run(ctx, l.rdb, []string{key},
		rate, burst, bucketTTL.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	allowed, _ := res[0].(int64)
	var tokens float64
	if s, ok := res[1].(string); ok {
		fmt.Sscanf(s, "%f", &tokens)
	}

	d := Decision{
		Allowed:   allowed == 1,
		Remaining: int(tokens),
	}
	if !d.Allowed {
		deficit := 1 - tokens
		if deficit < 0 {
			deficit = 0
		}
		d.RetryAfter = time.Duration(deficit / rate * float64(time.Second))
	}
	return d, nil
}
