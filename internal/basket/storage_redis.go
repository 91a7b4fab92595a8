package basket

import (
	"context"
	"fmt"
	"time"
)

type redisKV interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	BasketKey(sessionID, storageKey string) string
	Ping(ctx context.Context) error
}

// RedisStorage stores snapshots as Redis strings that expire after ttl of inactivity.
type RedisStorage struct {
	client redisKV
	ttl    time.Duration
}

// NewRedisStorage wraps a namespaced Redis client. A zero ttl keeps snapshots forever.
func NewRedisStorage(client redisKV, ttl time.Duration) (*RedisStorage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisStorage{client: client, ttl: ttl}, nil
}

func (r *RedisStorage) Load(ctx context.Context, scope, key string) ([]byte, bool, error) {
	value, ok, err := r.client.Lookup(ctx, r.client.BasketKey(scope, key))
	if err != nil || !ok {
		return nil, false, err
	}
	return []byte(value), true, nil
}

func (r *RedisStorage) Save(ctx context.Context, scope, key string, data []byte) error {
	return r.client.Set(ctx, r.client.BasketKey(scope, key), string(data), r.ttl)
}

func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}
