package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (Locker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisPublishLocker(client, 5*time.Second), client
}

func TestWithPublishLockRunsCallback(t *testing.T) {
	locker, _ := newTestLocker(t)

	ran := false
	err := locker.WithPublishLock(context.Background(), uuid.New(), time.Now(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithPublishLock: %v", err)
	}
	if !ran {
		t.Fatal("callback did not run")
	}
}

func TestWithPublishLockContended(t *testing.T) {
	locker, _ := newTestLocker(t)

	owner := uuid.New()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	err := locker.WithPublishLock(context.Background(), owner, day, func(ctx context.Context) error {
		// Same owner+day while held must be rejected.
		inner := locker.WithPublishLock(ctx, owner, day, func(ctx context.Context) error {
			return nil
		})
		if !errors.Is(inner, ErrLockNotAcquired) {
			t.Fatalf("expected ErrLockNotAcquired, got %v", inner)
		}

		// A different day is an independent lock.
		other := locker.WithPublishLock(ctx, owner, day.AddDate(0, 0, 1), func(ctx context.Context) error {
			return nil
		})
		if other != nil {
			t.Fatalf("different day should lock independently: %v", other)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithPublishLock: %v", err)
	}
}

func TestWithPublishLockReleasedAfterUse(t *testing.T) {
	locker, _ := newTestLocker(t)

	owner := uuid.New()
	day := time.Now()

	for i := 0; i < 2; i++ {
		err := locker.WithPublishLock(context.Background(), owner, day, func(ctx context.Context) error {
			return nil
		})
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
}
