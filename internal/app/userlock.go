/**
 * @description
 * Per-user locking for ledger mutations. The debit check is read-then-write,
 * so a Debit must never run concurrently with another Debit or Credit for the
 * same user. No ordering is required across different users.
 *
 * The default locker is a set of in-process keyed mutexes, which is correct
 * for the single-ledger-authority deployment the core targets. A Redis-backed
 * locker is provided for deployments that later split the ledger authority
 * across processes.
 */

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// UserLocker serializes ledger mutations per user. Lock blocks until the
// user's lock is held or ctx is done, and returns the release function.
type UserLocker interface {
	Lock(ctx context.Context, userID uuid.UUID) (func(), error)
}

// MutexUserLocker is the in-process UserLocker. Mutexes are created lazily
// per user and never evicted; the population is bounded by active users.
type MutexUserLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewMutexUserLocker creates an empty in-process locker.
func NewMutexUserLocker() *MutexUserLocker {
	return &MutexUserLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *MutexUserLocker) Lock(ctx context.Context, userID uuid.UUID) (func(), error) {
	l.mu.Lock()
	userLock, ok := l.locks[userID]
	if !ok {
		userLock = &sync.Mutex{}
		l.locks[userID] = userLock
	}
	l.mu.Unlock()

	userLock.Lock()
	return userLock.Unlock, nil
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisUserLocker implements UserLocker with a Redis SET NX lease. It exists
// for multi-process deployments; single-process installs should prefer
// MutexUserLocker.
type RedisUserLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisUserLocker creates a Redis-backed locker. ttl bounds how long a
// crashed holder can block other processes.
func NewRedisUserLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisUserLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisUserLocker{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisUserLocker) Lock(ctx context.Context, userID uuid.UUID) (func(), error) {
	key := fmt.Sprintf("%s:ledger_lock:%s", l.prefix, userID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire ledger lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_, _ = releaseLockScript.Run(releaseCtx, l.client, []string{key}, token).Result()
	}
	return release, nil
}
