package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	locker := NewRedisLockerWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { locker.Close() })
	return locker, mr
}

func TestRedisLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	locker, mr := newTestLocker(t)

	release, ok, err := locker.Acquire(ctx, "recurring:rule:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("recurring:rule:1"))

	_, ok, err = locker.Acquire(ctx, "recurring:rule:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other keys are independent.
	releaseOther, ok, err := locker.Acquire(ctx, "recurring:rule:2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	releaseOther()

	release()
	assert.False(t, mr.Exists("recurring:rule:1"))

	release, ok, err = locker.Acquire(ctx, "recurring:rule:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestRedisLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	locker, mr := newTestLocker(t)

	staleRelease, ok, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok, err = locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// The expired holder must not drop the new holder's lock.
	staleRelease()
	assert.True(t, mr.Exists("k"))
}

func TestRedisLocker_RedisDown(t *testing.T) {
	locker, mr := newTestLocker(t)
	mr.Close()

	_, ok, err := locker.Acquire(context.Background(), "k", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}
