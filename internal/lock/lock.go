// Package lock implements a named mutual-exclusion lock on Redis.
//
// A lock key self-expires after its lease, so a crashed holder can never
// deadlock other processes. There is no renewal: callers must size the lease
// to cover the worst-case critical section.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:"

// processID distinguishes this process from every other lock client, so two
// holders with the same owner string on different machines never share a token.
var processID = uuid.NewString()

// unlockScript deletes the lock key only when the stored token still belongs
// to the caller. Compare and delete must be one round trip: a plain GET+DEL
// could delete a lock reclaimed by someone else after our lease expired.
var unlockScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
end
return 0
`)

// Lock is a handle on one named lock for one owner. It is cheap to construct
// per acquisition; the Redis client is shared.
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
}

// New binds a lock name to an owner identity. The owner should identify the
// acquiring execution context (for example a user id or worker id); it is
// combined with a process-scoped UUID to form the holder token.
func New(rdb *redis.Client, name, owner string) *Lock {
	return &Lock{
		rdb:   rdb,
		key:   keyPrefix + name,
		token: processID + "-" + owner,
	}
}

// TryLock attempts a single non-blocking acquisition with the given lease.
// false means another holder currently owns the lock; retry policy is the
// caller's business.
func (l *Lock) TryLock(ctx context.Context, lease time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, lease).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return ok, nil
}

// Unlock releases the lock if this holder still owns it. Releasing a lock
// whose lease already expired and was taken by another holder is a no-op.
func (l *Lock) Unlock(ctx context.Context) error {
	if err := unlockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
