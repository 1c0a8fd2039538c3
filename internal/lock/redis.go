// Package lock provides a Redis-backed mutual exclusion lock for scheduler replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when releasing a key this instance does not own.
var ErrNotHeld = errors.New("lock not held")

// releaseScript deletes key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements batch.Locker with SET NX PX and a per-acquisition token.
type Redis struct {
	client redisClient
	mu     sync.Mutex
	tokens map[string]string
}

type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// NewRedis constructs a Redis lock. client is usually a *redis.Client.
func NewRedis(client redisClient) *Redis {
	return &Redis{client: client, tokens: make(map[string]string)}
}

// TryLock acquires key for ttl. It reports false when another holder owns it.
func (l *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set lock %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

// Unlock releases key if it is still held by this instance.
func (l *Redis) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return ErrNotHeld
	}

	released, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	if released == 0 {
		return fmt.Errorf("release lock %s: %w", key, ErrNotHeld)
	}
	return nil
}
