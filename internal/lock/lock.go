// Package lock provides a Redis-backed mutual exclusion lock for penalty sweeps.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "penalty:sweep:"

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type Locker struct {
	client *redis.Client
	script *redis.Script
}

// NewLocker returns nil when client is nil so callers can treat a missing
// Redis configuration as "no locking".
func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(releaseScript),
	}
}

// Key is the Redis key guarding sweeps of the given kind
func Key(kind string) string {
	return keyPrefix + kind
}

// TryLock attempts to take the sweep lock for kind. It returns the owner
// token and whether the lock was acquired.
func (l *Locker) TryLock(ctx context.Context, kind string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if kind == "" {
		return "", false, errors.New("lock kind is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, Key(kind), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release drops the lock only if token still owns it
func (l *Locker) Release(ctx context.Context, kind, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if kind == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{Key(kind)}, token).Err()
}
