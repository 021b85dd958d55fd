// Package lock provides the coordinator's optional advisory lock,
// guarding against two coordinator processes opening the same cache
// directory concurrently across hosts. bbolt's own file lock already
// prevents this within one host; this layer only matters when several
// hosts share one Redis instance and one cache path (e.g. over NFS).
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
	"github.com/redis/go-redis/v9"
)

// Locker acquires and releases an advisory lease for a cache path.
type Locker interface {
	// Acquire blocks until the lease for key is held or ctx is done. The
	// returned release func must be called to give up the lease.
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// NoopLocker grants the lease immediately and never contends, the
// default for single-host use where bbolt's file lock already suffices.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// RedisLocker leases a key via SET NX with a TTL, retrying on a short
// interval until the ctx deadline.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker builds a RedisLocker leasing keys for ttl, retrying
// every retry interval while a lease is held by someone else.
func NewRedisLocker(client *redis.Client, ttl, retry time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if retry <= 0 {
		retry = 100 * time.Millisecond
	}
	return &RedisLocker{client: client, ttl: ttl, retry: retry}
}

// Acquire leases "quickfetch:lock:"+key, retrying until ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	redisKey := fmt.Sprintf("quickfetch:lock:%s", key)
	token := fmt.Sprintf("%d", time.Now().UnixNano())

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, qferrors.Store("lock_acquire", err)
		}
		if ok {
			release := func(releaseCtx context.Context) error {
				current, err := l.client.Get(releaseCtx, redisKey).Result()
				if err != nil && err != redis.Nil {
					return qferrors.Store("lock_release", err)
				}
				if current == token {
					if err := l.client.Del(releaseCtx, redisKey).Err(); err != nil {
						return qferrors.Store("lock_release", err)
					}
				}
				return nil
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, qferrors.Store("lock_acquire", ctx.Err())
		case <-ticker.C:
		}
	}
}
