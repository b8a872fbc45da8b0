package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestWithLockRunsAndReleases(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, 5*time.Second)
	id := uuid.New()

	ran := false
	err := locker.WithLock(context.Background(), "appointment", id, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(LockKey("appointment", id)))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(LockKey("appointment", id)))
}

func TestWithLockContended(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, 5*time.Second)
	id := uuid.New()

	require.NoError(t, mr.Set(LockKey("invoice", id), "someone-else"))

	err := locker.WithLock(context.Background(), "invoice", id, func(ctx context.Context) error {
		t.Fatal("critical section must not run while locked")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// the foreign token must survive
	val, _ := mr.Get(LockKey("invoice", id))
	assert.Equal(t, "someone-else", val)
}

func TestWithLockPropagatesError(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewRedisLocker(client, 5*time.Second)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "appointment", uuid.New(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestNoopLocker(t *testing.T) {
	called := false
	err := NoopLocker{}.WithLock(context.Background(), "x", uuid.New(), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestStaleLeaseDoesNotReleaseNewOwner(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Second)
	id := uuid.New()
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "appointment", id)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	current, err := locker.Acquire(ctx, "appointment", id)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists(LockKey("appointment", id)))

	require.NoError(t, current.Release(ctx))
	assert.False(t, mr.Exists(LockKey("appointment", id)))
}
