package store

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/redis"
)

type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, data, 0); err != nil {
		return fmt.Errorf("storing snapshot %s in redis: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := s.client.GetBytes(ctx, s.prefix+key)
	if redis.IsNilError(err) {
		return nil, notFound("redis", key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s from redis: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
