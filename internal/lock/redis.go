// Package lock provides a TTL-bound distributed lock on Redis. It serializes
// one user's concurrent submissions for one event; it does not arbitrate
// different users competing for the same seat, which is the seat store's job.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"turnstile/internal/apperr"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

func NewClient(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return rdb, nil
}

// Only the holder's token may delete the key, so a lock that expired and was
// re-acquired by someone else is never released out from under them.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// RedisLocker implements lease-based mutual exclusion via SET NX PX.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes the lock for key with the given TTL and returns the holder
// token. It fails fast with apperr.ErrLockUnavailable when the lock is held;
// it never blocks waiting for the current holder.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("lock acquire failed: %w", err)
	}
	if !ok {
		return "", apperr.ErrLockUnavailable
	}

	return token, nil
}

// Release frees the lock if token still identifies the caller as holder.
// Releasing an expired or stolen lock is a no-op.
func (l *RedisLocker) Release(ctx context.Context, key string, token string) error {
	if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("lock release failed: %w", err)
	}
	return nil
}

// ReservationKey names the per-(user, event) lock.
func ReservationKey(userID, eventID int64) string {
	return fmt.Sprintf("reserve:%d:%d", eventID, userID)
}
