package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("resource lock not acquired")

// Locker serializes mutations on a single resource (an appointment, an invoice)
// across API replicas.
type Locker interface {
	WithLock(ctx context.Context, resource string, id uuid.UUID, fn func(ctx context.Context) error) error
}

// RedisLocker holds one key per locked resource. Contention fails fast with
// ErrLockNotAcquired; callers decide whether to retry.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func LockKey(resource string, id uuid.UUID) string {
	return fmt.Sprintf("lock:%s:%s", resource, id.String())
}

// Lease is a held lock. Release only deletes the key while it still carries
// this lease's token, so an expired lease never frees someone else's lock.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Acquire takes the lock for resource/id or returns ErrLockNotAcquired.
func (l *RedisLocker) Acquire(ctx context.Context, resource string, id uuid.UUID) (*Lease, error) {
	lease := &Lease{client: l.client, key: LockKey(resource, id), token: uuid.NewString()}

	ok, err := l.client.SetNX(ctx, lease.key, lease.token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s lock: %w", resource, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return lease, nil
}

// WithLock runs fn while holding the lock. fn's context expires with the lease.
func (l *RedisLocker) WithLock(ctx context.Context, resource string, id uuid.UUID, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, resource, id)
	if err != nil {
		return err
	}
	defer func() { _ = lease.Release(context.WithoutCancel(ctx)) }()

	leaseCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(leaseCtx)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (le *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, le.client, []string{le.key}, le.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", le.key, err)
	}
	return nil
}

// NoopLocker runs fn directly. Used by single-process tools and tests.
type NoopLocker struct{}

func (NoopLocker) WithLock(ctx context.Context, _ string, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
