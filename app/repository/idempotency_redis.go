package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrOperationInFlight is returned when another caller holds the key
// and its result is not memoized yet. Transient; retry later.
var ErrOperationInFlight = errors.New("operation with this key is in flight")

// RedisIdempotencyStore reserves logical operation keys via SETNX and
// memoizes the result of the first successful execution. Failed
// executions release the reservation so the operation can be retried.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) WithKey(ctx context.Context, key string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	resultKey := "idem:result:" + key
	lockKey := "idem:lock:" + key

	memo, err := s.client.Get(ctx, resultKey).Bytes()
	if err == nil {
		return memo, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	acquired, err := s.client.SetNX(ctx, lockKey, "1", s.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !acquired {
		// Another caller got there first; its result may have landed
		// between our Get and SetNX.
		memo, err := s.client.Get(ctx, resultKey).Bytes()
		if err == nil {
			return memo, nil
		}
		if errors.Is(err, redis.Nil) {
			return nil, ErrOperationInFlight
		}
		return nil, err
	}

	result, err := fn(ctx)
	if err != nil {
		_ = s.client.Del(ctx, lockKey).Err()
		return nil, err
	}
	if result == nil {
		result = []byte{}
	}

	if err := s.client.Set(ctx, resultKey, result, s.ttl).Err(); err != nil {
		return nil, err
	}
	_ = s.client.Del(ctx, lockKey).Err()
	return result, nil
}
