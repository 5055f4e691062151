package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPollInterval is how often RedisLocker retries a held lock.
const DefaultPollInterval = 50 * time.Millisecond

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// RedisLocker implements Locker with SET NX PX and a compare-and-delete unlock.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	poll   time.Duration
}

// NewRedisLocker creates a locker. Keys are prefix+"lock:"+key.
func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, poll: DefaultPollInterval}
}

// WithPollInterval sets the retry interval and returns the locker.
func (l *RedisLocker) WithPollInterval(d time.Duration) *RedisLocker {
	if d > 0 {
		l.poll = d
	}
	return l
}

// Key returns the redis key guarding key.
func (l *RedisLocker) Key(key string) string {
	return l.prefix + "lock:" + key
}

// Lock blocks until the lock on key is acquired or ctx is done. While held,
// the lock's TTL is extended every ttl/3, so a run may outlast ttl; the TTL
// only matters when the holder dies.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	lockKey := l.Key(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		if ok {
			stop := make(chan struct{})
			done := make(chan struct{})
			go l.refresh(lockKey, token, ttl, stop, done)

			var once sync.Once
			return func(ctx context.Context) error {
				once.Do(func() {
					close(stop)
					<-done
				})
				return unlockScript.Run(ctx, l.client, []string{lockKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// refresh keeps extending a held lock until stop is closed or the lock is
// found to belong to someone else.
func (l *RedisLocker) refresh(key, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl)
			n, err := refreshScript.Run(ctx, l.client, []string{key}, token, ttl.Milliseconds()).Int()
			cancel()
			if err != nil || n == 0 {
				return
			}
		}
	}
}
