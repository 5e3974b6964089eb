package sequence

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps counters as Redis integers incremented with INCR.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore constructs a RedisStore. Keys are namespaced under "seq:".
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, keyPrefix: "seq:"}
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, s.keyPrefix+key).Result()
}
