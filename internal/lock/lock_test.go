package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestNoopLocker_AlwaysAcquires(t *testing.T) {
	var l NoopLocker
	release, err := l.Acquire(context.Background(), "any-path")
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	client := newTestRedis(t)
	l := NewRedisLocker(client, time.Second, 10*time.Millisecond)

	release, err := l.Acquire(context.Background(), "cache-dir")
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))

	// after release, the lease must be free again.
	release2, err := l.Acquire(context.Background(), "cache-dir")
	require.NoError(t, err)
	require.NoError(t, release2(context.Background()))
}

func TestRedisLocker_BlocksConcurrentHolder(t *testing.T) {
	client := newTestRedis(t)
	l := NewRedisLocker(client, 5*time.Second, 10*time.Millisecond)

	release, err := l.Acquire(context.Background(), "cache-dir")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "cache-dir")
	require.Error(t, err, "a second acquire must not succeed while the first lease is held")

	require.NoError(t, release(context.Background()))
}
