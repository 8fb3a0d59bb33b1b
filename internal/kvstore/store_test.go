package kvstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis spins up an in-memory Redis and returns a RedisStore over it.
func setupTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	return &RedisStore{Client: redis.NewClient(&redis.Options{Addr: s.Addr()})}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Load(ctx, "conversion_queue")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, "conversion_queue", []byte(`{"ad_conversions":[]}`)))

	got, err := store.Load(ctx, "conversion_queue")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"ad_conversions":[]}`), got)

	// Overwrites replace the whole value.
	require.NoError(t, store.Save(ctx, "conversion_queue", []byte(`{"ad_conversions":[{}]}`)))
	got, err = store.Load(ctx, "conversion_queue")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"ad_conversions":[{}]}`), got)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()

	_, err := store.Load(ctx, "conversion_queue")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, "conversion_queue", []byte(`{"ad_conversions":[]}`)))

	got, err := store.Load(ctx, "conversion_queue")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"ad_conversions":[]}`), got)
}
