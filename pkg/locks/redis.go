package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/redis"
)

const (
	defaultTTL          = 30 * time.Second
	defaultPollInterval = 25 * time.Millisecond
	releaseTimeout      = 2 * time.Second
)

// RedisLockerParams configures a RedisLocker.
type RedisLockerParams struct {
	Store        redis.LockStore
	Logger       *logger.Logger
	Wait         time.Duration
	TTL          time.Duration
	PollInterval time.Duration
}

// RedisLocker coordinates exclusive access across processes with SETNX keys
// owned by a random token. The TTL bounds how long a crashed owner can hold a key.
type RedisLocker struct {
	store redis.LockStore
	logg  *logger.Logger
	wait  time.Duration
	ttl   time.Duration
	poll  time.Duration
}

// NewRedisLocker constructs a Redis-backed Locker.
func NewRedisLocker(params RedisLockerParams) (*RedisLocker, error) {
	if params.Store == nil {
		return nil, errors.New("redis lock store required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	poll := params.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &RedisLocker{
		store: params.Store,
		logg:  params.Logger,
		wait:  waitOrDefault(params.Wait),
		ttl:   ttl,
		poll:  poll,
	}, nil
}

// Acquire takes every id in ascending order, polling until the wait window closes.
func (l *RedisLocker) Acquire(ctx context.Context, scope string, ids ...string) (Release, error) {
	keys := orderedKeys(ids)
	owner := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	held := make([]func(), 0, len(keys))
	for _, id := range keys {
		key := l.store.LockKey(scope, id)
		if err := l.acquireOne(ctx, key, owner, deadline); err != nil {
			releaseAll(held)()
			if errors.Is(err, errLockWaitExceeded) {
				return nil, ErrTimeout(scope)
			}
			return nil, err
		}
		held = append(held, l.releaser(key, owner))
	}
	return releaseAll(held), nil
}

var errLockWaitExceeded = errors.New("lock wait exceeded")

func (l *RedisLocker) acquireOne(ctx context.Context, key, owner string, deadline time.Time) error {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
		if err != nil {
			return fmt.Errorf("setnx %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return errLockWaitExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) releaser(key, owner string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if _, err := l.store.CompareAndDelete(ctx, key, owner); err != nil && l.logg != nil {
			l.logg.Error(l.logg.WithField(ctx, "lock_key", key), "failed to release lock", err)
		}
	}
}
