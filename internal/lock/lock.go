// Package lock serializes events per session. Acquisition never blocks: a
// second holder for the same key is turned away with ErrHeld.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can keep a session locked.
// A live holder renews the lock every third of the TTL, so an event with
// many slow LLM calls keeps it for as long as it runs.
const DefaultTTL = 2 * time.Minute

// ErrHeld is returned when another event holds the session.
var ErrHeld = errors.New("session is locked by another event")

// Locker hands out per-key locks.
type Locker interface {
	// Acquire takes the lock for key or fails with ErrHeld. The returned
	// function releases it.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalLocker locks within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by someone else is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript pushes the expiry out only while the key holds our token.
var extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// keepAlive calls extend every interval until done is closed or extend
// reports the lock lost.
func keepAlive(done <-chan struct{}, every time.Duration, extend func() bool) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !extend() {
				return
			}
		}
	}
}

// RedisLocker locks across processes sharing one Redis.
type RedisLocker struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker connects to addr and checks the connection.
func NewRedisLocker(ctx context.Context, addr string, ttl time.Duration) (*RedisLocker, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisLocker{rdb: rdb, prefix: "alis:lock:", ttl: ttl}, nil
}

func (r *RedisLocker) redisKey(key string) string {
	return r.prefix + key
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	k := r.redisKey(key)

	ok, err := r.rdb.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, key)
	}

	done := make(chan struct{})
	go keepAlive(done, r.ttl/3, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := extendScript.Run(ctx, r.rdb, []string{k}, token, r.ttl.Milliseconds()).Int()
		return err == nil && n == 1
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			// Release must run even when the request context is done.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.rdb, []string{k}, token).Err()
		})
	}, nil
}

// Close closes the Redis client.
func (r *RedisLocker) Close() error {
	return r.rdb.Close()
}
