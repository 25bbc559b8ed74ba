package deadletter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nopeoplecar/uvdispatch/internal/bus"
	"github.com/nopeoplecar/uvdispatch/internal/kv"
	"github.com/nopeoplecar/uvdispatch/internal/logger"
)

// TestObserverStoresAgedMessage covers P9/S4's detection half: a message
// older than the expiry threshold lands in KV with a bounded TTL.
func TestObserverStoresAgedMessage(t *testing.T) {
	cache := kv.NewMemCache()
	obs := NewObserver(cache, logger.NewNop(), 300*time.Second)

	msg := bus.Message{
		ID:          "msg-1",
		TimestampMs: time.Now().Add(-600 * time.Second).UnixMilli(),
		Body:        []byte(`{"order_id":"1003"}`),
	}
	obs.handle(msg)

	ctx := context.Background()
	fields, err := cache.HGetAll(ctx, "deadletter:msg-1")
	require.NoError(t, err)
	require.Equal(t, "msg-1", fields["msg_id"])

	ttl, err := cache.TTL(ctx, "deadletter:msg-1")
	require.NoError(t, err)
	require.LessOrEqual(t, ttl, 86400*time.Second)
	require.Greater(t, ttl, time.Duration(0))
}

// TestObserverIgnoresFreshMessage: a message within the expiry window is
// never dead-lettered.
func TestObserverIgnoresFreshMessage(t *testing.T) {
	cache := kv.NewMemCache()
	obs := NewObserver(cache, logger.NewNop(), 300*time.Second)

	obs.handle(bus.Message{ID: "msg-2", TimestampMs: time.Now().UnixMilli(), Body: []byte("x")})

	_, ok, err := cache.HGet(context.Background(), "deadletter:msg-2", "msg_id")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestArchiverFlushesAgingEntry covers P9/S4's archival half: once a
// record's remaining TTL drops below 12h, the maintenance cycle writes it
// to disk and removes it from KV.
func TestArchiverFlushesAgingEntry(t *testing.T) {
	cache := kv.NewMemCache()
	ctx := context.Background()

	require.NoError(t, cache.HMSetWithTTL(ctx, "deadletter:msg-3",
		map[string]string{"timestamp": "123", "msg_id": "msg-3", "data": "payload"},
		11*time.Hour,
	))

	dir := t.TempDir()
	arch := NewArchiver(cache, logger.NewNop(), dir)
	require.NoError(t, arch.RunCycle(ctx))

	_, ok, err := cache.HGet(ctx, "deadletter:msg-3", "msg_id")
	require.NoError(t, err)
	require.False(t, ok, "archived key must be removed from KV")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.NotEmpty(t, content)
	require.Contains(t, string(content), "msg-3")

	stats, err := cache.HGetAll(ctx, "deadletter:maintenance")
	require.NoError(t, err)
	require.Equal(t, "1", stats["processed"])
	require.Equal(t, "0", stats["failed"])
}

// TestArchiverSkipsFreshEntry: an entry with plenty of remaining TTL is
// left alone.
func TestArchiverSkipsFreshEntry(t *testing.T) {
	cache := kv.NewMemCache()
	ctx := context.Background()

	require.NoError(t, cache.HMSetWithTTL(ctx, "deadletter:msg-4",
		map[string]string{"timestamp": "1", "msg_id": "msg-4", "data": "x"},
		24*time.Hour,
	))

	dir := t.TempDir()
	arch := NewArchiver(cache, logger.NewNop(), dir)
	require.NoError(t, arch.RunCycle(ctx))

	_, ok, err := cache.HGet(ctx, "deadletter:msg-4", "msg_id")
	require.NoError(t, err)
	require.True(t, ok, "fresh entry should not be archived yet")
}
