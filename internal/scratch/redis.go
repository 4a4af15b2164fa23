package scratch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ratingcore/internal/constants"
	"ratingcore/pkg/metrics"
)

type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Put(ctx context.Context, key, value string) error {
	err := s.client.Set(ctx, s.key(key), value, s.ttl).Err()
	s.observe("put", err)
	if err != nil {
		return fmt.Errorf("scratch put %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		metrics.IncScratchOperation(constants.ScratchBackendRedis, "get", "miss")
		return "", false, nil
	}
	s.observe("get", err)
	if err != nil {
		return "", false, fmt.Errorf("scratch get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Contains(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	s.observe("contains", err)
	if err != nil {
		return false, fmt.Errorf("scratch contains %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	err := s.client.Del(ctx, s.key(key)).Err()
	s.observe("clear", err)
	if err != nil {
		return fmt.Errorf("scratch clear %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) observe(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncScratchOperation(constants.ScratchBackendRedis, operation, status)
}
