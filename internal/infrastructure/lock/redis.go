package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const (
	defaultTTL     = 30 * time.Second
	defaultWait    = 10 * time.Second
	defaultBackoff = 100 * time.Millisecond
	redisKeyPrefix = "intake:lock:"
)

// RedisLocker serializes entity writes across API and worker replicas.
type RedisLocker struct {
	rdb     *redis.Client
	locker  *redislock.Client
	ttl     time.Duration
	wait    time.Duration
	backoff time.Duration
}

func NewRedisLocker(redisURL string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	rdb := redis.NewClient(opts)
	return &RedisLocker{
		rdb:     rdb,
		locker:  redislock.New(rdb),
		ttl:     ttl,
		wait:    defaultWait,
		backoff: defaultBackoff,
	}, nil
}

func (l *RedisLocker) Ping(ctx context.Context) error {
	if err := l.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Lock waits up to the configured wait time for the key. Failing to obtain
// it in time is reported as a temporary error.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	attempts := int(l.wait / l.backoff)
	obtained, err := l.locker.Obtain(ctx, redisKeyPrefix+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), attempts),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, domain.WrapError(domain.ErrTemporary, "obtain entity lock", fmt.Errorf("key %s is busy", key))
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "obtain entity lock", err)
	}

	return func(releaseCtx context.Context) error {
		if err := obtained.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release entity lock: %w", err)
		}
		return nil
	}, nil
}

func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}
