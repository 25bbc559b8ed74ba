package kv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestLockMutualExclusion covers P10: two concurrent TryLocks on the same
// key produce one success and one failure.
func TestLockMutualExclusion(t *testing.T) {
	c := NewMemCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, ok, err := TryLock(ctx, c, "order_lock:1001", time.Second)
			require.NoError(t, err)
			results[i] = ok
		}()
	}
	wg.Wait()

	successes := 0
	for _, ok := range results {
		if ok {
			successes++
		}
	}
	require.Equal(t, 1, successes)
}

// TestLockUnlockReleasesKey covers P10's "destructor releases the key"
// half: Unlock frees the key for a subsequent TryLock.
func TestLockUnlockReleasesKey(t *testing.T) {
	c := NewMemCache()
	ctx := context.Background()

	lock, ok, err := TryLock(ctx, c, "order_lock:1002", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = TryLock(ctx, c, "order_lock:1002", time.Second)
	require.False(t, ok, "lock should still be held")

	require.NoError(t, lock.Unlock(ctx))

	_, ok, err = TryLock(ctx, c, "order_lock:1002", time.Second)
	require.NoError(t, err)
	require.True(t, ok, "lock should be free after unlock")
}

func TestLockUnlockFailsIfStolen(t *testing.T) {
	c := NewMemCache()
	ctx := context.Background()

	lock, ok, err := TryLock(ctx, c, "order_lock:1003", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	other, ok, err := TryLock(ctx, c, "order_lock:1003", time.Second)
	require.NoError(t, err)
	require.True(t, ok, "expired lock should be re-acquirable")

	err = lock.Unlock(ctx)
	require.Error(t, err, "stale unlock must not release someone else's lock")

	require.NoError(t, other.Unlock(ctx))
}
