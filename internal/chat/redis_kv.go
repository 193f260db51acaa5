package chat

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	"github.com/linkhub/chat-service/pkg/redis"
)

// RedisKV adapts the shared Redis client to the cache's KV surface.
// Values are written without expiry; eviction is always explicit.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV wraps client.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// Get reads key. A missing key is (nil, false, nil), not an error.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set writes key with no TTL.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

// Del removes the given keys.
func (r *RedisKV) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Keys returns every key matching pattern via incremental SCAN.
func (r *RedisKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}
