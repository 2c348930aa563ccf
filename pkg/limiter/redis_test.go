package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, opts ...StoreOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store, err := NewRedisStore(client, opts...)
	require.NoError(t, err)
	return store, mr
}

func TestRedisStore_Increment(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, err := store.Increment(ctx, "1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}
}

func TestRedisStore_WindowExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	count, err := store.Increment(ctx, "1.2.3.4", time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	mr.FastForward(1100 * time.Millisecond)

	count, err = store.Increment(ctx, "1.2.3.4", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "counter must reset after the window expires")
}

func TestRedisStore_ExpirySetOnce(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := store.Increment(ctx, "1.2.3.4", time.Second)
	require.NoError(t, err)

	// A second request half way through the window must not extend it.
	mr.FastForward(600 * time.Millisecond)
	_, err = store.Increment(ctx, "1.2.3.4", time.Second)
	require.NoError(t, err)

	mr.FastForward(600 * time.Millisecond)
	count, err := store.Increment(ctx, "1.2.3.4", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "window start is fixed by the first request")
}

func TestRedisStore_Reset(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := store.Increment(ctx, "1.2.3.4", time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx, "1.2.3.4"))
	require.NoError(t, store.Reset(ctx, "1.2.3.4"), "reset on absent key is a no-op")

	count, err := store.Increment(ctx, "1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedisStore_WithPrefix(t *testing.T) {
	store, mr := newTestRedisStore(t, WithPrefix("custom_app:"))
	ctx := context.Background()

	_, err := store.Increment(ctx, "1.2.3.4", time.Minute)
	require.NoError(t, err)

	assert.True(t, mr.Exists("custom_app:1.2.3.4"))
	assert.False(t, mr.Exists("ratelimit:1.2.3.4"))
}

func TestRedisStore_ContextCancellation(t *testing.T) {
	store, _ := newTestRedisStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Increment(ctx, "1.2.3.4", time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisStore_SurfacesConnectionFailure(t *testing.T) {
	store, mr := newTestRedisStore(t, WithTimeout(100*time.Millisecond), WithMaxAttempts(2))
	ctx := context.Background()

	mr.Close()

	_, err := store.Increment(ctx, "1.2.3.4", time.Minute)
	require.Error(t, err, "errors must surface to the caller after bounded retries")
}

func BenchmarkRedisStore_Increment(b *testing.B) {
	mr := miniredis.RunT(b)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store, err := NewRedisStore(client)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Increment(ctx, "bench-key", time.Minute)
	}
}
