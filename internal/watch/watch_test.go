package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	fetched atomic.Int32
	cleared atomic.Int32
}

func (f *fakeCache) Fetch(ctx context.Context) error {
	f.fetched.Add(1)
	return nil
}

func (f *fakeCache) Clear() error {
	f.cleared.Add(1)
	return nil
}

func TestLoop_ModifyTriggersReloadAndFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"packages":[]}`), 0o644))

	cache := &fakeCache{}
	var loaded atomic.Int32
	load := func(string) error {
		loaded.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Loop(ctx, path, cache, load, nil) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"packages":[{"name":"x"}]}`), 0o644))

	require.Eventually(t, func() bool {
		return cache.fetched.Load() > 0 && loaded.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestLoop_RemoveClearsCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"packages":[]}`), 0o644))

	cache := &fakeCache{}
	load := func(string) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Loop(ctx, path, cache, load, nil) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		return cache.cleared.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
