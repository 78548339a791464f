// Package keylock serializes work per key, either inside one process or
// across processes through Redis.
package keylock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the context ends before the lock is free.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

// Locker hands out exclusive locks by key. Lock blocks until the lock is
// held or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// New returns a Redis-backed locker when client is non-nil and an
// in-process locker otherwise.
func New(client *redis.Client, ttl, retry time.Duration) Locker {
	if client != nil {
		return NewRedisLocker(client, ttl, retry)
	}
	return NewLocalLocker()
}

// =============================================================================
// In-process locks
// =============================================================================

type localEntry struct {
	sem  chan struct{}
	refs int
}

// LocalLocker keeps one mutex per key and drops it once nobody waits on it.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

// NewLocalLocker returns an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*localEntry)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-e.sem
			l.release(key, e)
		})
		return nil
	}, nil
}

func (l *LocalLocker) release(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// =============================================================================
// Redis locks
// =============================================================================

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker uses SET NX with a TTL and a random owner token, so a lock
// that outlives its TTL cannot be released by its former holder.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a locker backed by client.
func NewRedisLocker(client *redis.Client, ttl, retry time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	return &RedisLocker{client: client, ttl: ttl, retry: retry}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := fmt.Sprintf("lock:%s", key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", redisKey, err)
		}
		if ok {
			return func(ctx context.Context) error {
				return releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
			}, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		}
	}
}

// Ping checks that Redis is reachable.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
