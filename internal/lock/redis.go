package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only when it still holds our token, so an
// expired lock taken over by another process is never released by us.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions tunes the distributed lock.
type RedisOptions struct {
	TTL           time.Duration
	RetryInterval time.Duration
	WaitTimeout   time.Duration
}

func (o *RedisOptions) applyDefaults() {
	if o.TTL <= 0 {
		o.TTL = 10 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 25 * time.Millisecond
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = 3 * time.Second
	}
}

// RedisLock is a Locker shared by every process talking to the same Redis.
type RedisLock struct {
	client *redis.Client
	opts   RedisOptions
}

// NewRedisLock wraps an existing client.
func NewRedisLock(client *redis.Client, opts RedisOptions) *RedisLock {
	opts.applyDefaults()
	return &RedisLock{client: client, opts: opts}
}

// Acquire polls SET NX until the key is ours or the wait budget is spent.
func (r *RedisLock) Acquire(ctx context.Context, key string) (func(), error) {
	const op = "lock.RedisLock.Acquire"

	lockKey := fmt.Sprintf("lock:%s", key)
	token := uuid.NewString()
	deadline := time.Now().Add(r.opts.WaitTimeout)

	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, r.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s: %s: %w", op, key, ErrNotAcquired)
		}

		timer := time.NewTimer(r.opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%s: %w: %v", op, ErrNotAcquired, ctx.Err())
		case <-timer.C:
		}
	}

	return func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = unlockScript.Run(ctxUnlock, r.client, []string{lockKey}, token).Err()
	}, nil
}
