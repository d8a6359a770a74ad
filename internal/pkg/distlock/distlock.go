package distlock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Locker creates locks for keys. Postback dedupe takes one lock per
// transaction and status and keeps it for the TTL.
type Locker interface {
	NewLock(key string, ttl time.Duration) DistLock
}

// NewLocker returns a Redis-backed Locker when client is non-nil, otherwise
// a process-local MemoryLocker (single instance deployments and tests).
func NewLocker(client redis.Cmdable) Locker {
	if client != nil {
		return redisLocker{client: client}
	}
	return NewMemoryLocker(time.Now)
}

type redisLocker struct {
	client redis.Cmdable
}

func (r redisLocker) NewLock(key string, ttl time.Duration) DistLock {
	return NewRedisLock(r.client, key, ttl)
}

// PostbackKey is the dedupe key for one status of one transaction.
func PostbackKey(platform, transactionID, status string) string {
	return fmt.Sprintf("postback:%s:%s:%s", strings.ToLower(platform), transactionID, strings.ToLower(status))
}

// =============================================================================
// In-memory lock (fallback when Redis is not configured)
// =============================================================================
// Keys expire after their TTL like Redis keys do. State lives only in this
// process, so two replicas will not see each other's locks.

// MemoryLocker hands out locks backed by one shared in-process table.
type MemoryLocker struct {
	mu   sync.Mutex
	keys map[string]memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	owner   *MemoryLock
	expires time.Time
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker(now func() time.Time) *MemoryLocker {
	if now == nil {
		now = time.Now
	}
	return &MemoryLocker{keys: make(map[string]memoryEntry), now: now}
}

// NewLock implements Locker.
func (m *MemoryLocker) NewLock(key string, ttl time.Duration) DistLock {
	return &MemoryLock{locker: m, key: "lock:" + key, ttl: ttl}
}

// MemoryLock implements DistLock on a MemoryLocker.
type MemoryLock struct {
	locker *MemoryLocker
	key    string
	ttl    time.Duration
}

// Acquire implements DistLock.
func (l *MemoryLock) Acquire(ctx context.Context) (bool, error) {
	m := l.locker
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)
	if _, held := m.keys[l.key]; held {
		return false, nil
	}
	m.keys[l.key] = memoryEntry{owner: l, expires: now.Add(l.ttl)}
	return true, nil
}

// Release implements DistLock.
func (l *MemoryLock) Release(ctx context.Context) error {
	m := l.locker
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.keys[l.key]; ok && e.owner == l {
		delete(m.keys, l.key)
	}
	return nil
}

func (m *MemoryLocker) sweep(now time.Time) {
	for k, e := range m.keys {
		if !now.Before(e.expires) {
			delete(m.keys, k)
		}
	}
}
