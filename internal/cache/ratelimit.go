package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// rateLimitUserPrefix is the Redis key prefix for per-user rate limits.
	rateLimitUserPrefix = "ratelimit:user:"
	// rateLimitIPPrefix is the Redis key prefix for IP rate limits.
	rateLimitIPPrefix = "ratelimit:ip:"
	// rateLimitUserTTL is the TTL for user rate limit keys.
	rateLimitUserTTL = 120 * time.Second
	// rateLimitIPTTL is the TTL for IP rate limit keys.
	rateLimitIPTTL = 10 * time.Second
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes atomically. The clock is
// Redis's own (microsecond precision), so every app node sees the
// same bucket state regardless of local clock skew. Returns
// {allowed, retry_after_seconds, remaining_tokens}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local ttl = tonumber(ARGV[3])

	local clock = redis.call('TIME')
	local now = tonumber(clock[1]) + tonumber(clock[2]) / 1000000

	local state = redis.call('HMGET', key, 'tokens', 'refilled_at')
	local tokens = tonumber(state[1]) or burst
	local refilled_at = tonumber(state[2]) or now

	tokens = math.min(burst, tokens + (now - refilled_at) * rate)

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tokens, 'refilled_at', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// bucketSpec describes one token bucket to draw from.
type bucketSpec struct {
	key           string
	ratePerSecond float64
	burst         int
	ttl           time.Duration
}

// CheckUserRateLimit checks and updates the request rate limit for a user.
// The rate comes from the user's plan; ratePerMinute 0 means unlimited.
func (c *Cache) CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute == 0 {
		return &RateLimitResult{
			Allowed:   true,
			Remaining: int64(burst),
			ResetAt:   time.Now().Add(time.Minute),
		}, nil
	}

	return c.takeToken(ctx, bucketSpec{
		key:           rateLimitUserPrefix + userID,
		ratePerSecond: float64(ratePerMinute) / 60.0,
		burst:         burst,
		ttl:           rateLimitUserTTL,
	})
}

// CheckIPRateLimit checks and updates the rate limit for an IP address.
// The IP is hashed so raw addresses never land in Redis.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	return c.takeToken(ctx, bucketSpec{
		key:           rateLimitIPPrefix + hashIP(ip),
		ratePerSecond: float64(ratePerSecond),
		burst:         burst,
		ttl:           rateLimitIPTTL,
	})
}

// takeToken draws one token from the bucket. Redis errors fail open:
// losing the limiter must not take request serving down with it.
func (c *Cache) takeToken(ctx context.Context, spec bucketSpec) (*RateLimitResult, error) {
	result, err := tokenBucketScript.Run(ctx, c.client,
		[]string{spec.key},
		spec.ratePerSecond, spec.burst, int(spec.ttl.Seconds()),
	).Int64Slice()

	if err != nil {
		return &RateLimitResult{
			Allowed:   true,
			Remaining: int64(spec.burst),
			ResetAt:   time.Now().Add(time.Minute),
		}, nil
	}

	allowed := result[0] == 1
	retryAfter := time.Duration(result[1]) * time.Second
	remaining := result[2]

	resetAt := time.Now().Add(retryAfter)
	if allowed {
		// Time until the bucket is full again
		refill := float64(int64(spec.burst)-remaining) / spec.ratePerSecond
		resetAt = time.Now().Add(time.Duration(refill * float64(time.Second)))
	}

	return &RateLimitResult{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}, nil
}

// hashIP creates a truncated SHA256 hash of an IP address.
// This provides privacy while maintaining uniqueness.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8]) // 16 hex chars
}
