package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisDeduper implements Deduper with SET NX and a TTL.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper creates a Redis-backed deduper. A non-positive ttl falls
// back to DefaultDedupeTTL.
func NewRedisDeduper(client *redis.Client, prefix string, ttl time.Duration) *RedisDeduper {
	if client == nil {
		panic("idempotency: redis client is required")
	}
	if prefix == "" {
		prefix = "dedupe"
	}
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrEmptyKey
	}

	ok, err := d.client.SetNX(ctx, d.prefix+":"+eventID, 1, d.ttl).Result()
	if err != nil {
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	// SetNX succeeds only for the first writer.
	return !ok, nil
}

// RedisLocker implements Locker with SET NX plus a token-checked release so a
// holder cannot release a lock that expired and was re-acquired elsewhere.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if client == nil {
		panic("idempotency: redis client is required")
	}
	if prefix == "" {
		prefix = "lock"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

// releaseScript deletes the lock only when the stored token matches.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(ctx context.Context) error, error) {
	if name == "" {
		return nil, ErrEmptyKey
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	key := l.prefix + ":" + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return errors.Join(ErrStoreUnavailable, err)
		}
		return nil
	}
	return release, nil
}
