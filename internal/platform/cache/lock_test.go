package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) *Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, time.Minute)
}

func TestWithLockExcludesConcurrentHolder(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	var inner error
	err := locker.WithLock(ctx, "loyalty:company:1:expire:lock", func(ctx context.Context) error {
		inner = locker.WithLock(ctx, "loyalty:company:1:expire:lock", func(context.Context) error {
			t.Fatal("nested holder must not run")
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	require.ErrorIs(t, inner, ErrLocked)
}

func TestWithLockReleasesAfterRun(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()
	runs := 0
	for i := 0; i < 3; i++ {
		require.NoError(t, locker.WithLock(ctx, "k", func(context.Context) error {
			runs++
			return nil
		}))
	}
	require.Equal(t, 3, runs)
}

func TestNilLockerRunsInline(t *testing.T) {
	var locker *Locker
	called := false
	require.NoError(t, locker.WithLock(context.Background(), "k", func(context.Context) error {
		called = true
		return nil
	}))
	require.True(t, called)
}
