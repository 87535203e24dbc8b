package quota

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterRetention bounds how long a finished period's counter stays in
// Redis. It must exceed the longest period so the usage endpoints can still
// read the current month.
const counterRetention = 35 * 24 * time.Hour

// RedisStore keeps counters in Redis. INCR is atomic on the server, so
// concurrent increments from any number of instances are never lost.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. Keys are namespaced under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k Key) string {
	return s.prefix + k.String()
}

func (s *RedisStore) GetCount(ctx context.Context, key Key) (int64, error) {
	n, err := s.client.Get(ctx, s.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, StoreError("get", err)
	}
	return n, nil
}

func (s *RedisStore) IncrementAndGet(ctx context.Context, key Key) (int64, error) {
	k := s.key(key)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, counterRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, StoreError("increment", err)
	}
	return incr.Val(), nil
}
