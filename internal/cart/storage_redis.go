package cart

import (
	"context"
	"errors"
	"time"

	pkgredis "github.com/cornman/cornman-backend/pkg/redis"
)

type redisKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CartKey(storageKey string) string
}

// RedisStorage stores snapshots as redis strings, refreshing the TTL on every write.
type RedisStorage struct {
	client redisKV
	ttl    time.Duration
}

func NewRedisStorage(client redisKV, ttl time.Duration) (*RedisStorage, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	return &RedisStorage{client: client, ttl: ttl}, nil
}

func (s *RedisStorage) Load(ctx context.Context, key string) (string, bool, error) {
	payload, err := s.client.Get(ctx, s.client.CartKey(key))
	if err != nil {
		if pkgredis.IsNil(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return payload, true, nil
}

func (s *RedisStorage) Save(ctx context.Context, key, payload string) error {
	return s.client.Set(ctx, s.client.CartKey(key), payload, s.ttl)
}

func (s *RedisStorage) Backend() string { return "redis" }
