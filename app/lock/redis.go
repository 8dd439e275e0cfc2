package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`

// RedisLocker keeps campaign locks as Redis keys holding an owner token, so
// only the owner can extend or delete them.
type RedisLocker struct {
	client *redis.Client
	mu     sync.Mutex
	held   map[string]string
}

// NewRedisLocker constructs a Redis-based lock manager.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client: client,
		held:   make(map[string]string),
	}
}

// Acquire sets key with a fresh owner token unless another worker holds it.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	if _, exists := l.held[key]; exists {
		l.mu.Unlock()
		return ErrAlreadyHeld
	}
	l.mu.Unlock()

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}

	l.mu.Lock()
	l.held[key] = token
	l.mu.Unlock()
	return nil
}

// Extend refreshes the TTL of a key this process owns.
func (l *RedisLocker) Extend(ctx context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	token, ok := l.held[key]
	l.mu.Unlock()
	if !ok {
		return ErrNotAcquired
	}

	res, err := l.client.Eval(ctx, extendScript, []string{key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if res != 1 {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
		return ErrNotAcquired
	}
	return nil
}

// Release deletes key if the stored token is still ours.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.held[key]
	if ok {
		delete(l.held, key)
	}
	l.mu.Unlock()

	if !ok {
		return nil
	}

	return l.client.Eval(ctx, releaseScript, []string{key}, token).Err()
}
