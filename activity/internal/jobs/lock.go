package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker provides a best-effort single-flight guard across workers.
type Locker interface {
	// Acquire returns ok=false when the key is already held. release must be
	// called when ok is true.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// NoopLocker always grants the lock.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "activity:lock:"}
}

// NewRedisLockerFromURL connects to redisURL and verifies the connection.
func NewRedisLockerFromURL(redisURL string) (*RedisLocker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedisLocker(client), nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	full := l.prefix + key

	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		releaseScript.Run(ctx, l.client, []string{full}, token)
	}
	return release, true, nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
