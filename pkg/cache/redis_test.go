package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisAdapterTest creates a miniredis instance and returns the adapter and cleanup function
func setupRedisAdapterTest(t *testing.T) (*RedisAdapter, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client, err := NewRedisClient(context.Background(), RedisConfig{
		URL:        "redis://" + mr.Addr(),
		MaxRetries: 3,
		PoolSize:   10,
	})
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create Redis client: %v", err)
	}

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return NewRedisAdapter(client, "grantor:rh", time.Hour), mr, cleanup
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{URL: "not-a-url"})
	assert.Error(t, err)
}

func TestRedisAdapter_GetSet(t *testing.T) {
	adapter, mr, cleanup := setupRedisAdapterTest(t)
	defer cleanup()
	ctx := context.Background()

	_, found, err := adapter.Get(ctx, Key("user", "ROLE_ADMIN"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, adapter.Set(ctx, Key("user", "ROLE_ADMIN"), []string{"ROLE_ADMIN", "ROLE_USER"}))
	assert.True(t, mr.Exists("grantor:rh:user:ROLE_ADMIN"))
	assert.Equal(t, time.Hour, mr.TTL("grantor:rh:user:ROLE_ADMIN"))

	value, found, err := adapter.Get(ctx, Key("user", "ROLE_ADMIN"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"ROLE_ADMIN", "ROLE_USER"}, value)
}

func TestRedisAdapter_CorruptValue(t *testing.T) {
	adapter, mr, cleanup := setupRedisAdapterTest(t)
	defer cleanup()

	require.NoError(t, mr.Set("grantor:rh:user:broken", "{not json"))

	_, found, err := adapter.Get(context.Background(), "user:broken")
	assert.Error(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists("grantor:rh:user:broken"))
}

func TestRedisAdapter_ClearByPrefixes(t *testing.T) {
	adapter, mr, cleanup := setupRedisAdapterTest(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, adapter.Set(ctx, Key("org-1", "a"), []string{"A"}))
	require.NoError(t, adapter.Set(ctx, Key("org-1", "b"), []string{"B"}))
	require.NoError(t, adapter.Set(ctx, Key("org-10", "a"), []string{"A"}))
	require.NoError(t, adapter.Set(ctx, Key("user", "a"), []string{"A"}))
	require.NoError(t, mr.Set("other:key", "untouched"))

	require.NoError(t, adapter.ClearByPrefixes(ctx, "org-1", "user"))

	assert.False(t, mr.Exists("grantor:rh:org-1:a"))
	assert.False(t, mr.Exists("grantor:rh:org-1:b"))
	assert.False(t, mr.Exists("grantor:rh:user:a"))
	assert.True(t, mr.Exists("grantor:rh:org-10:a"))

	require.NoError(t, adapter.Clear(ctx))
	assert.False(t, mr.Exists("grantor:rh:org-10:a"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisAdapter_DefaultNamespace(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	adapter := NewRedisAdapter(client, "", 0)
	require.NoError(t, adapter.Set(context.Background(), "user:a", []string{"A"}))
	assert.True(t, mr.Exists("grantor:user:a"))
}
