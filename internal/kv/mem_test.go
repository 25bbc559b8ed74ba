package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemCacheHashRoundTrip(t *testing.T) {
	c := NewMemCache()
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "vehicle_orders:10", "1001", `{"reward":50}`))
	v, ok, err := c.HGet(ctx, "vehicle_orders:10", "1001")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"reward":50}`, v)

	all, err := c.HGetAll(ctx, "vehicle_orders:10")
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, c.HDel(ctx, "vehicle_orders:10", "1001"))
	_, ok, _ = c.HGet(ctx, "vehicle_orders:10", "1001")
	require.False(t, ok)
}

func TestMemCacheHMSetWithTTLExpires(t *testing.T) {
	c := NewMemCache()
	ctx := context.Background()

	require.NoError(t, c.HMSetWithTTL(ctx, "deadletter:1", map[string]string{
		"timestamp": "1700000000", "msg_id": "1",
	}, 10*time.Millisecond))

	ttl, err := c.TTL(ctx, "deadletter:1")
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	time.Sleep(20 * time.Millisecond)
	ttl, err = c.TTL(ctx, "deadletter:1")
	require.NoError(t, err)
	require.Equal(t, time.Duration(0), ttl)
}

func TestMemCacheKeysScansPattern(t *testing.T) {
	c := NewMemCache()
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "deadletter:1", "msg_id", "1"))
	require.NoError(t, c.HSet(ctx, "deadletter:2", "msg_id", "2"))
	require.NoError(t, c.Set(ctx, "other:1", "x", 0))

	keys, err := c.Keys(ctx, "deadletter:*")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"deadletter:1", "deadletter:2"}, keys)
}

func TestMemCacheAtomicCAS(t *testing.T) {
	c := NewMemCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "1", 0))

	ok, err := c.AtomicCAS(ctx, "k", "0", "2")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = c.AtomicCAS(ctx, "k", "1", "2")
	require.NoError(t, err)
	require.True(t, ok)

	v, _, _ := c.Get(ctx, "k")
	require.Equal(t, "2", v)
}
