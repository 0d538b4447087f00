// Package lock provides distributed locks backed by Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"stockflow/internal/core/apperror"
	"stockflow/pkg/logger"
)

const keyPrefix = "stockflow:"

// obtainer is the part of *redislock.Client the Locker uses.
type obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// Config tunes lock acquisition.
type Config struct {
	TTL     time.Duration
	Retries int
	Backoff time.Duration
}

// RedisLocker obtains one redislock lock per key, in the order given.
type RedisLocker struct {
	client obtainer
	cfg    Config
}

// NewRedisLocker creates a locker on an existing Redis client.
func NewRedisLocker(rdb redis.UniversalClient, cfg Config) *RedisLocker {
	return newLocker(redislock.New(rdb), cfg)
}

func newLocker(client obtainer, cfg Config) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	return &RedisLocker{client: client, cfg: cfg}
}

// Lock obtains every key or none. A key held elsewhere yields a CONFLICT
// error once the retries are spent.
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.cfg.Backoff), l.cfg.Retries),
	}

	held := make([]*redislock.Lock, 0, len(keys))
	release := func() {
		// Release outlives a cancelled request.
		ctx := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Warn(ctx, "release lock failed", "key", held[i].Key(), "error", err)
			}
		}
	}

	for _, key := range keys {
		lk, err := l.client.Obtain(ctx, keyPrefix+key, l.cfg.TTL, opts)
		if err != nil {
			release()
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, apperror.NewConflict(fmt.Sprintf("%s is being changed by another request", key)).
					WithDetail("key", key)
			}
			return nil, fmt.Errorf("obtain lock %s: %w", key, err)
		}
		held = append(held, lk)
	}
	return release, nil
}

// Connect opens a Redis client and checks it answers.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, PoolSize: 20})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}
