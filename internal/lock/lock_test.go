package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLock_MutualExclusion(t *testing.T) {
	_, rdb := setup(t)
	ctx := context.Background()

	first := New(rdb, "order:42", "worker-a")
	ok, err := first.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	second := New(rdb, "order:42", "worker-b")
	ok, err = second.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire a held lock")

	require.NoError(t, first.Unlock(ctx))

	ok, err = second.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "lock must be free after release")
}

func TestLock_DifferentNamesDoNotContend(t *testing.T) {
	_, rdb := setup(t)
	ctx := context.Background()

	a := New(rdb, "order:1", "w")
	b := New(rdb, "order:2", "w")

	ok, err := a.TryLock(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_LeaseExpiry(t *testing.T) {
	mr, rdb := setup(t)
	ctx := context.Background()

	first := New(rdb, "order:42", "worker-a")
	ok, err := first.TryLock(ctx, 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(3 * time.Second)

	second := New(rdb, "order:42", "worker-b")
	ok, err = second.TryLock(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease must be reclaimable")
}

func TestLock_UnlockIgnoresForeignToken(t *testing.T) {
	mr, rdb := setup(t)
	ctx := context.Background()

	stale := New(rdb, "order:42", "worker-a")
	ok, err := stale.TryLock(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Lease expires and another holder takes over.
	mr.FastForward(2 * time.Second)
	current := New(rdb, "order:42", "worker-b")
	ok, err = current.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// The stale holder's release must not delete the new holder's lock.
	require.NoError(t, stale.Unlock(ctx))

	val, err := rdb.Get(ctx, "lock:order:42").Result()
	require.NoError(t, err)
	assert.Contains(t, val, "worker-b")
}

func TestLock_ReentryWithSameOwnerStillExcluded(t *testing.T) {
	_, rdb := setup(t)
	ctx := context.Background()

	first := New(rdb, "order:42", "worker-a")
	ok, err := first.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// The lock is not reentrant: a second acquisition attempt fails even for
	// the same owner until the first is released.
	again := New(rdb, "order:42", "worker-a")
	ok, err = again.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}
