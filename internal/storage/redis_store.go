package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dubspace:kv:"

// RedisStore persists container state in Redis. Values are stored without a
// TTL: the containers own the lifecycle of their keys and clear them on
// sign-out.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStore initializes a Redis-backed Store implementation.
func NewRedisStore(client *redis.Client, log *slog.Logger) Store {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		log:    log,
	}
}

// Get returns the stored value or ErrKeyNotFound when absent.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrKeyNotFound
		}

		s.log.Error("failed to read key from redis", "key", key, "error", err)
		return "", err
	}

	return data, nil
}

// Set durably stores value under key.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		s.log.Error("failed to write key to redis", "key", key, "error", err)
		return err
	}

	return nil
}

// Remove deletes the stored value for key.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		s.log.Error("failed to remove key from redis", "key", key, "error", err)
		return err
	}

	return nil
}
