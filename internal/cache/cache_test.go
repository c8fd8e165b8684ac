package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, nil), srv
}

func TestGetOrComputeCachesOnMiss(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (snapshot, error) {
		calls++
		return snapshot{ID: "p1", Content: "hello"}, nil
	}

	got, err := GetOrCompute(ctx, c, PostKey("p1"), time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	got, err = GetOrCompute(ctx, c, PostKey("p1"), time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, 1, calls)

	assert.True(t, srv.Exists("post:p1"))
	assert.Equal(t, time.Hour, srv.TTL("post:p1"))
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	_, err := GetOrCompute(ctx, c, PostKey("p1"), time.Hour, func(context.Context) (snapshot, error) {
		return snapshot{}, errors.New("store down")
	})
	require.Error(t, err)
	assert.False(t, srv.Exists("post:p1"))
}

func TestEntryExpiresWithTTL(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	version := "v1"
	compute := func(context.Context) (string, error) { return version, nil }

	_, err := GetOrCompute(ctx, c, PostListKey(1, 10), 5*time.Minute, compute)
	require.NoError(t, err)

	version = "v2"
	got, err := GetOrCompute(ctx, c, PostListKey(1, 10), 5*time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "v1", got, "served from cache inside the TTL")

	srv.FastForward(5*time.Minute + time.Second)
	got, err = GetOrCompute(ctx, c, PostListKey(1, 10), 5*time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
}

func TestInvalidate(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, srv.Set("post:p1", `{"id":"p1"}`))
	require.NoError(t, srv.Set("post:p2", `{"id":"p2"}`))

	c.Invalidate(ctx, PostKey("p1"))
	assert.False(t, srv.Exists("post:p1"))
	assert.True(t, srv.Exists("post:p2"))
}

func TestInvalidatePattern(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	for _, k := range []string{"post-list:1:10", "post-list:2:10", "post-list:1:20"} {
		require.NoError(t, srv.Set(k, "[]"))
	}
	require.NoError(t, srv.Set("post:p1", "{}"))

	c.InvalidatePattern(ctx, PostListPrefix)

	assert.False(t, srv.Exists("post-list:1:10"))
	assert.False(t, srv.Exists("post-list:2:10"))
	assert.False(t, srv.Exists("post-list:1:20"))
	assert.True(t, srv.Exists("post:p1"))
}

func TestTombstoneBlocksLateWriteBack(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	stored := true
	read := func(context.Context) (snapshot, error) {
		if stored {
			return snapshot{ID: "p1", Content: "before delete"}, nil
		}
		return snapshot{}, errors.New("post p1 not found")
	}

	// a reader fetched the row just before the delete committed
	stale, err := read(ctx)
	require.NoError(t, err)

	stored = false
	c.Tombstone(ctx, PostKey("p1"), time.Hour)

	// the late reader now tries to cache what it fetched
	store(ctx, c, PostKey("p1"), stale, time.Hour)

	_, err = GetOrCompute(ctx, c, PostKey("p1"), time.Hour, read)
	require.Error(t, err)

	val, err := srv.Get("post:p1")
	require.NoError(t, err)
	assert.Equal(t, tombstone, val)
}

func TestTombstoneEntryIsNotReplacedOnRead(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	c.Tombstone(ctx, PostKey("p1"), time.Hour)
	calls := 0
	for i := 0; i < 2; i++ {
		_, err := GetOrCompute(ctx, c, PostKey("p1"), time.Hour, func(context.Context) (snapshot, error) {
			calls++
			return snapshot{ID: "p1"}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)

	val, err := srv.Get("post:p1")
	require.NoError(t, err)
	assert.Equal(t, tombstone, val)
}

func TestUndecodableEntryIsRecomputed(t *testing.T) {
	c, srv := newTestCache(t)
	require.NoError(t, srv.Set("post:p1", "not json"))

	got, err := GetOrCompute(context.Background(), c, PostKey("p1"), time.Hour, func(context.Context) (snapshot, error) {
		return snapshot{ID: "p1"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
}

func TestDegradedMode(t *testing.T) {
	ctx := context.Background()

	t.Run("backend down", func(t *testing.T) {
		c, srv := newTestCache(t)
		srv.Close()

		got, err := GetOrCompute(ctx, c, PostKey("p1"), time.Hour, func(context.Context) (string, error) {
			return "fresh", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "fresh", got)

		assert.NotPanics(t, func() {
			c.Invalidate(ctx, PostKey("p1"))
			c.InvalidatePattern(ctx, PostListPrefix)
		})
	})

	t.Run("disabled", func(t *testing.T) {
		c := New(nil, nil)
		assert.False(t, c.Enabled())

		calls := 0
		for i := 0; i < 2; i++ {
			_, err := GetOrCompute(ctx, c, PostKey("p1"), time.Hour, func(context.Context) (int, error) {
				calls++
				return calls, nil
			})
			require.NoError(t, err)
		}
		assert.Equal(t, 2, calls)
		c.Invalidate(ctx, PostKey("p1"))
	})
}
