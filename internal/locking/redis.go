package locking

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-redis/redis/v8"
)

// RedisLocker - распределённая блокировка для нескольких экземпляров сервиса
type RedisLocker struct {
	client  *redislock.Client
	backoff time.Duration
	wait    time.Duration
}

func NewRedisLocker(client *redis.Client, backoff, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client:  redislock.New(client),
		backoff: backoff,
		wait:    wait,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	lock, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}

	return &redisLock{lock: lock}, nil
}

type redisLock struct {
	lock *redislock.Lock
}

func (l *redisLock) Key() string {
	return l.lock.Key()
}

func (l *redisLock) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
