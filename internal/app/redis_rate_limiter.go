package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// purchaseWindowScript keeps one sorted set member per accepted attempt, scored
// by its time in milliseconds. Members older than the window are trimmed before
// counting and a refused attempt is not recorded.
//
// Reply: {allowed, attempts in window, milliseconds until a slot frees up}.
var purchaseWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
if count < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  redis.call("PEXPIRE", KEYS[1], window)
  return {1, count + 1, 0}
end
local retry = window
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if oldest[2] then
  retry = tonumber(oldest[2]) + window - now
end
return {0, count, retry}
`)

// PurchaseQuota is the outcome of one rate limited purchase attempt.
type PurchaseQuota struct {
	Allowed    bool
	Attempts   int
	RetryAfter time.Duration
}

// RateLimiter throttles purchase attempts per buyer and raffle over a sliding window.
type RateLimiter interface {
	ConsumePurchase(ctx context.Context, buyerID, raffleID uuid.UUID, limit int, window time.Duration, now time.Time) (PurchaseQuota, error)
}

// RedisRateLimiter implements RateLimiter with a sorted set per buyer and raffle.
type RedisRateLimiter struct {
	client redis.Scripter
	prefix string
}

func NewRedisRateLimiter(client redis.Scripter, prefix string) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: keyPrefix(prefix, "raffle:rate_limit")}
}

// ConsumePurchase records an attempt at now unless the buyer already made limit
// attempts on this raffle within window. A disabled limiter allows everything.
func (r *RedisRateLimiter) ConsumePurchase(ctx context.Context, buyerID, raffleID uuid.UUID, limit int, window time.Duration, now time.Time) (PurchaseQuota, error) {
	allowed := PurchaseQuota{Allowed: true}
	if r == nil || r.client == nil || limit <= 0 || window <= 0 || buyerID == uuid.Nil || raffleID == uuid.Nil {
		return allowed, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}
	key := redisKey(r.prefix, "purchase", raffleID.String(), buyerID.String())
	values, err := runIntScript(ctx, r.client, purchaseWindowScript, []string{key}, 3,
		now.UnixMilli(), windowMs, int64(limit), uuid.NewString())
	if err != nil {
		return allowed, err
	}

	quota := PurchaseQuota{Allowed: values[0] == 1, Attempts: int(values[1])}
	if !quota.Allowed {
		retry := values[2]
		if retry <= 0 {
			retry = windowMs
		}
		quota.RetryAfter = time.Duration(retry) * time.Millisecond
	}
	return quota, nil
}
