package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants short-lived exclusive leases so that two sweep runs never settle
// the same raffle at once. release is safe to call when acquired is false.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockClient is the subset of a Redis client the locker uses.
type LockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker implements Locker with SET NX PX and a compare-and-delete release.
type RedisLocker struct {
	client LockClient
	prefix string
}

func NewRedisLocker(client LockClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: keyPrefix(prefix, "raffle:lock")}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	noop := func() {}
	if l == nil || l.client == nil {
		return noop, true, nil
	}

	fullKey := redisKey(l.prefix, key)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return noop, false, err
	}
	if !ok {
		return noop, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		deleted, err := runIntScript(releaseCtx, l.client, releaseLockScript, []string{fullKey}, 1, token)
		switch {
		case err != nil:
			log.Printf("level=warn component=locker msg=\"failed to release lock\" key=%s err=%v", fullKey, err)
		case deleted[0] == 0:
			log.Printf("level=warn component=locker msg=\"lock expired before release\" key=%s", fullKey)
		}
	}
	return release, true, nil
}
