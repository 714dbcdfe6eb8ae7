// Package lock serializes reconciliation of concurrent observations that
// target the same run identity. Two entry points (webhook ingestion and the
// background poller) may see the same build at the same time; whichever
// reconciles first must finish its existence check, upsert and notified-flag
// flip before the other starts.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IdentityLocker grants exclusive access per run identity key. Distinct keys
// proceed in parallel.
type IdentityLocker interface {
	// Acquire blocks until the key is held or ctx expires. The returned
	// release function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// --------------------- in-process locker ---------------------

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex is the single-instance locker: one mutex per identity key,
// created on demand and dropped once no goroutine holds or waits for it.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

// NewKeyedMutex creates an in-process identity locker.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Acquire locks the mutex for key. The context is checked before blocking;
// lock hold times are short (one reconcile round-trip) so waiting is not
// interruptible mid-acquire.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	entry, ok := m.entries[key]
	if !ok {
		entry = &keyedEntry{}
		m.entries[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	entry.mu.Lock()

	release := func() {
		entry.mu.Unlock()
		m.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(m.entries, key)
		}
		m.mu.Unlock()
	}
	return release, nil
}

// --------------------- redis-backed locker ---------------------

// RedisLocker implements IdentityLocker on a shared Redis instance so
// multiple dashboard replicas can reconcile against one store.
type RedisLocker struct {
	client         *redis.Client
	keyPrefix      string
	lockTTL        time.Duration
	acquireTimeout time.Duration
}

// NewRedisLocker creates a RedisLocker.
//   - keyPrefix: prepended to every identity key (e.g. "pipeline_dashboard:reconcile:")
//   - ttl: how long a lock is held before auto-expiry (prevents deadlock)
//   - acquireTimeout: max time to wait when trying to acquire a lock
func NewRedisLocker(client *redis.Client, keyPrefix string, ttl, acquireTimeout time.Duration) *RedisLocker {
	return &RedisLocker{
		client:         client,
		keyPrefix:      keyPrefix,
		lockTTL:        ttl,
		acquireTimeout: acquireTimeout,
	}
}

// releaseScript atomically checks that the lock value matches before deleting,
// preventing a replica from releasing a lock it no longer owns.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// Acquire attempts to obtain the lock for key, blocking with exponential
// backoff until success or timeout.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := l.keyPrefix + key
	lockID := uuid.New().String()
	deadline := time.Now().Add(l.acquireTimeout)
	backoff := 50 * time.Millisecond

	for {
		ok, err := l.client.SetNX(ctx, lockKey, lockID, l.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			release := func() {
				if _, err := releaseScript.Run(context.Background(), l.client, []string{lockKey}, lockID).Result(); err != nil && err != redis.Nil {
					// Lock expires on its own via TTL; nothing else to do.
					_ = err
				}
			}
			return release, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout acquiring reconcile lock for %s after %s", key, l.acquireTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		// exponential backoff, max 500ms
		backoff *= 2
		if backoff > 500*time.Millisecond {
			backoff = 500 * time.Millisecond
		}
	}
}
