package flowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"callflow-platform/internal/callflow"

	"github.com/redis/go-redis/v9"
)

// Cache holds decoded flows keyed by phone number for the call path.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, phoneNumber string) (callflow.CallFlow, bool, error)
	Set(ctx context.Context, f callflow.CallFlow) error
	Invalidate(ctx context.Context, phoneNumber string) error
}

// RedisCache stores flows as JSON under "<prefix><phone>" with a TTL.
type RedisCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

const defaultCachePrefix = "callflow:number:"

func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: defaultCachePrefix}
}

func (c *RedisCache) key(phone string) string { return c.prefix + phone }

func (c *RedisCache) Get(ctx context.Context, phoneNumber string) (callflow.CallFlow, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(phoneNumber)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return callflow.CallFlow{}, false, nil
		}
		return callflow.CallFlow{}, false, fmt.Errorf("flowstore: cache get: %w", err)
	}
	var f callflow.CallFlow
	if err := json.Unmarshal(raw, &f); err != nil {
		// A corrupt entry is treated as a miss; the next Set overwrites it.
		return callflow.CallFlow{}, false, nil
	}
	return f, true, nil
}

func (c *RedisCache) Set(ctx context.Context, f callflow.CallFlow) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("flowstore: cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(f.PhoneNumber), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("flowstore: cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, phoneNumber string) error {
	if err := c.rdb.Del(ctx, c.key(phoneNumber)).Err(); err != nil {
		return fmt.Errorf("flowstore: cache invalidate: %w", err)
	}
	return nil
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (callflow.CallFlow, bool, error) {
	return callflow.CallFlow{}, false, nil
}
func (NopCache) Set(context.Context, callflow.CallFlow) error { return nil }
func (NopCache) Invalidate(context.Context, string) error      { return nil }
