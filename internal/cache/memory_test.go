package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGet_NotFound(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemory[CacheTestDummy](time.Minute, 100)
	require.NoError(t, err)

	token, found, err := cache.Get(ctx, "nonexistent")

	assert.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, CacheTestDummy{}, token)
}

func TestMemorySetAndGet_Success(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemory[CacheTestDummy](time.Minute, 100)
	require.NoError(t, err)

	expected := CacheTestDummy{Data: "role-token"}

	err = cache.Set(ctx, "CPO", expected)
	require.NoError(t, err)

	token, found, err := cache.Get(ctx, "CPO")

	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, expected, token)
}

func TestMemoryInvalidate_Idempotent(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemory[CacheTestDummy](time.Minute, 100)
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "CPO", CacheTestDummy{Data: "x"}))

	require.NoError(t, cache.Invalidate(ctx, "CPO"))
	require.NoError(t, cache.Invalidate(ctx, "CPO"))

	_, found, err := cache.Get(ctx, "CPO")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemory[CacheTestDummy](100*time.Millisecond, 100)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, cache.TTL())

	require.NoError(t, cache.Set(ctx, "CPO", CacheTestDummy{Data: "x"}))

	_, found, err := cache.Get(ctx, "CPO")
	assert.NoError(t, err)
	assert.True(t, found)

	time.Sleep(150 * time.Millisecond)

	_, found, err = cache.Get(ctx, "CPO")
	assert.NoError(t, err)
	assert.False(t, found)
}

// CacheTestDummy stands in for the token types cached by callers.
type CacheTestDummy struct {
	Data string
}
