package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvet/docuvet/internal/testutil"
)

func TestRedisConfigCache_SetGetDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	defer client.Close()

	cache := NewRedisConfigCache(client)
	ctx := context.Background()

	_, err := cache.Get(ctx, "doctype:global:pan")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "doctype:global:pan", []byte(`{"code":"pan"}`), time.Minute))

	got, err := cache.Get(ctx, "doctype:global:pan")
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"pan"}`, string(got))

	existed, err := cache.Delete(ctx, "doctype:global:pan")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = cache.Delete(ctx, "doctype:global:pan")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = cache.Get(ctx, "doctype:global:pan")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisConfigCache_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	defer client.Close()

	cache := NewRedisConfigCache(client)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "doctype:owner-1:pan", []byte(`{}`), 100*time.Millisecond))

	_, err := cache.Get(ctx, "doctype:owner-1:pan")
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)

	_, err = cache.Get(ctx, "doctype:owner-1:pan")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisConfigCache_EmptyKey(t *testing.T) {
	cache := NewRedisConfigCache(nil)
	ctx := context.Background()

	_, err := cache.Get(ctx, "")
	assert.Error(t, err)
	assert.Error(t, cache.Set(ctx, "", nil, time.Minute))
	_, err = cache.Delete(ctx, "")
	assert.Error(t, err)
}
