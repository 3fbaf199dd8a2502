package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("publish lock not acquired")
)

// Locker serializes slot publication per owner and calendar day, so two
// concurrent batch publishes report conflicts deterministically instead of
// racing each other into the unique index.
type Locker interface {
	WithPublishLock(ctx context.Context, ownerID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error
}

type redisPublishLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPublishLocker creates a locker keyed by owner and UTC day.
func NewRedisPublishLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisPublishLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisPublishLocker) WithPublishLock(ctx context.Context, ownerID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:publish:%s:%s", ownerID.String(), day.UTC().Format("2006-01-02"))
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire publish lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisPublishLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release publish lock: %w", err)
	}
	return nil
}
