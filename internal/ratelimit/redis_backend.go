package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// tokenBucketScript atomically performs token bucket rate limiting in
// Redis. It reads the bucket's tokens/last_refill, refills based on
// elapsed time, admits or rejects the request, and writes the new
// state back with a TTL that auto-expires idle buckets.
//
// Keys: KEYS[1] = bucket key
// Args: ARGV[1] = max_tokens, ARGV[2] = refill_rate, ARGV[3] = requested, ARGV[4] = now (unix microseconds)
//
// Copied from the teacher's internal/ratelimit/redis_backend.go, ported
// from go-redis v9 to the v8 client this module already carries.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local max_tokens = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local bucket = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(bucket[1])
local last_refill = tonumber(bucket[2])

if tokens == nil then
    tokens = max_tokens
    last_refill = now
end

local elapsed = (now - last_refill) / 1000000.0
if elapsed > 0 then
    tokens = math.min(max_tokens, tokens + elapsed * refill_rate)
end

local allowed = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
end

redis.call("HMSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
local ttl = math.ceil(max_tokens / refill_rate * 2)
if ttl < 60 then ttl = 60 end
redis.call("EXPIRE", key, ttl)

return {allowed, math.floor(tokens)}
`)

// RedisBackend implements Backend using Redis for distributed
// admission control shared across every scalemqd process fronting the
// same socket.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a Redis-backed rate limiting backend.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client, prefix: "scalemq:rl:bucket:"}
}

func (b *RedisBackend) CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	bucketKey := b.prefix + key
	nowMicro := redisTimeNow()

	result, err := tokenBucketScript.Run(ctx, b.client, []string{bucketKey},
		maxTokens, refillRate, requested, nowMicro,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis rate limit check: %w", err)
	}

	return result[0] == 1, int(result[1]), nil
}

var redisTimeNow = func() int64 {
	return time.Now().UnixMicro()
}
