package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript runs the whole consume step on the Redis server.
//
// KEYS[1] points counter, KEYS[2] block marker.
// ARGV[1] points, ARGV[2] window ms, ARGV[3] block ms.
// Returns {consumed, ttl_ms}; consumed is -1 when an existing block rejected
// the request without consuming.
var consumeScript = redis.NewScript(`
local block_ttl = redis.call('PTTL', KEYS[2])
if block_ttl > 0 then
  return {-1, block_ttl}
end
local consumed = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
if consumed > tonumber(ARGV[1]) then
  redis.call('DEL', KEYS[1])
  local block_ms = tonumber(ARGV[3])
  if block_ms > 0 then
    redis.call('SET', KEYS[2], '1', 'PX', ARGV[3])
  end
  return {consumed, block_ms}
end
return {consumed, ttl}
`)

// RedisStore keeps limiter state in Redis so limits hold across instances.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. Keys are namespaced under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Consume(ctx context.Context, key string, cfg Config) (Result, error) {
	pointsKey := s.prefix + key
	blockKey := s.prefix + key + ":block"

	vals, err := consumeScript.Run(ctx, s.client,
		[]string{pointsKey, blockKey},
		cfg.Points,
		cfg.Duration.Milliseconds(),
		cfg.BlockDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("ratelimit: unexpected script reply %v", vals)
	}

	consumed, ttl := vals[0], time.Duration(vals[1])*time.Millisecond
	switch {
	case consumed < 0:
		return Result{Blocked: true, ResetIn: ttl}, nil
	case consumed > int64(cfg.Points):
		return Result{Consumed: int(consumed), Blocked: true, ResetIn: ttl}, nil
	default:
		return Result{Consumed: int(consumed), ResetIn: ttl}, nil
	}
}
