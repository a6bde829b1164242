package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestCacheGetOrLoadSafe(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	cache := NewCache(client)

	var loads atomic.Int32
	loader := func() (interface{}, error) {
		loads.Add(1)
		time.Sleep(10 * time.Millisecond)
		return map[string]int{"Remaining": 7}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := cache.GetOrLoadSafe(ctx, "credits:u1", time.Minute, loader)
			assert.NoError(t, err)
			assert.JSONEq(t, `{"Remaining":7}`, string(b))
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, loads.Load())

	require.NoError(t, cache.Delete(ctx, "credits:u1"))
	_, err := cache.Get(ctx, "credits:u1")
	assert.True(t, IsNil(err))
}

func TestCacheLoaderErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	cache := NewCache(client)

	_, err := cache.GetOrLoadSafe(ctx, "credits:u2", time.Minute, func() (interface{}, error) {
		return nil, errors.New("db down")
	})
	require.Error(t, err)
	assert.False(t, mr.Exists("credits:u2"))
}

func TestCacheSetExpires(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	cache := NewCache(client)

	require.NoError(t, cache.Set(ctx, "k", "v", time.Second))
	mr.FastForward(2 * time.Second)
	_, err := cache.Get(ctx, "k")
	assert.True(t, IsNil(err))
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	l := NewRateLimiter(client)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	key := BuildRateLimitKey("u1", "generate")
	assert.Equal(t, "ratelimit:u1:generate", key)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := l.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := l.Remaining(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	now = now.Add(61 * time.Second)
	ok, err = l.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
