package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"attestia/internal/provider"
)

const redisKeyPrefix = "aggregator:response:"

// RedisStore persists provider responses in Redis.
//
// The entry TTL handed to Redis is already scaled by the refresh threshold,
// so Redis-side expiry enforces the staleness boundary and stale entries are
// never observable.
type RedisStore struct {
	client           *redis.Client
	refreshThreshold float64
}

// NewRedisStore constructs a Redis-backed response cache.
func NewRedisStore(client *redis.Client, refreshThreshold float64) *RedisStore {
	if refreshThreshold <= 0 || refreshThreshold > 1 {
		refreshThreshold = 0.8
	}
	return &RedisStore{client: client, refreshThreshold: refreshThreshold}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*provider.Response, bool) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		missesTotal.Inc()
		return nil, false
	}

	var resp provider.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		missesTotal.Inc()
		return nil, false
	}
	hitsTotal.Inc()
	return &resp, true
}

func (s *RedisStore) Put(ctx context.Context, key string, resp *provider.Response, ttl time.Duration) error {
	if resp == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode cached response: %w", err)
	}
	effective := time.Duration(float64(ttl) * s.refreshThreshold)
	if err := s.client.Set(ctx, redisKeyPrefix+key, payload, effective).Err(); err != nil {
		return fmt.Errorf("save cached response: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("redis client not configured")
	}
	return s.client.Ping(ctx).Err()
}
