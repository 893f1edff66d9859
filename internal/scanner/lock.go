package scanner

import (
	"context"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	DefaultLockKey = "ticketwatch:scan-lock"
	DefaultLockTTL = 10 * time.Minute
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock keeps scan cycles of separate processes sharing one store from overlapping.
type RedisLock struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
}

func NewRedisLock(rdb *redis.Client) *RedisLock {
	return &RedisLock{Client: rdb, Key: DefaultLockKey, TTL: DefaultLockTTL}
}

// Acquire returns false when another holder has the lock. The returned release func is
// nil unless the lock was taken.
func (l *RedisLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, l.Key, token, l.TTL).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "error acquiring scan lock: %s", l.Key)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// The caller's context may already be done when the cycle ends.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.Client, []string{l.Key}, token).Err()
	}
	return release, true, nil
}
