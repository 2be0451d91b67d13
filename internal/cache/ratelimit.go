package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"
)

const (
	userBucketPrefix = "ratelimit:user:"
	ipBucketPrefix   = "ratelimit:ip:"
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time // when the bucket is full again
	RetryAfter time.Duration
}

// takeToken refills a token bucket for the elapsed milliseconds and takes
// one token if available. The key lives only as long as a full refill.
//
// Returns {allowed, retry_after_ms, tokens_left, full_in_ms}.
var takeToken = redis.NewScript(`
local rate  = tonumber(ARGV[1]) -- tokens per millisecond
local burst = tonumber(ARGV[2])
local now   = tonumber(ARGV[3]) -- unix ms

local state  = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts     = tonumber(state[2]) or now
if now > ts then
  tokens = math.min(burst, tokens + (now - ts) * rate)
end

local allowed, wait = 0, 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  wait = math.ceil((1 - tokens) / rate)
end

local full = math.ceil((burst - tokens) / rate)
redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', now)
redis.call('PEXPIRE', KEYS[1], math.max(full, 1000))
return {allowed, wait, math.floor(tokens), full}
`)

// CheckUserRateLimit takes a token from a signed-in user's bucket, which
// refills at ratePerMinute. A zero rate means unlimited.
func (c *Cache) CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute == 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now()}, nil
	}
	return c.takeToken(ctx, userBucketPrefix+userID, float64(ratePerMinute)/float64(time.Minute/time.Millisecond), burst)
}

// CheckIPRateLimit takes a token from an anonymous client's bucket within
// scope ("assistant", "auth"). Addresses are hashed before they reach Redis.
func (c *Cache) CheckIPRateLimit(ctx context.Context, scope, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	return c.takeToken(ctx, ipBucketPrefix+scope+":"+hashIP(ip), float64(ratePerSecond)/1000, burst)
}

// takeToken returns an error when Redis is unreachable; callers let the
// request through in that case.
func (c *Cache) takeToken(ctx context.Context, key string, perMilli float64, burst int) (*RateLimitResult, error) {
	now := time.Now()
	if perMilli <= 0 || burst <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: now}, nil
	}
	out, err := takeToken.Run(ctx, c.client, []string{key}, perMilli, burst, now.UnixMilli()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("rate limit %s: unexpected reply %v", key, out)
	}
	return &RateLimitResult{
		Allowed:    out[0] == 1,
		RetryAfter: time.Duration(out[1]) * time.Millisecond,
		Remaining:  out[2],
		ResetAt:    now.Add(time.Duration(out[3]) * time.Millisecond),
	}, nil
}

// hashIP keeps client addresses out of Redis: 16 hex chars of BLAKE3.
func hashIP(ip string) string {
	sum := blake3.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
