package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func correlationKey(providerMessageID string) string {
	return "corr:" + providerMessageID
}

func triggerKey(triggerID string) string {
	return "drip:trigger:" + triggerID
}

func (c *RedisCache) StoreCorrelation(ctx context.Context, providerMessageID, messageID string) error {
	return c.rdb.Set(ctx, correlationKey(providerMessageID), messageID, c.ttl).Err()
}

func (c *RedisCache) LookupCorrelation(ctx context.Context, providerMessageID string) (string, error) {
	val, err := c.rdb.Get(ctx, correlationKey(providerMessageID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *RedisCache) ClaimTrigger(ctx context.Context, triggerID string) (bool, error) {
	return c.rdb.SetNX(ctx, triggerKey(triggerID), "1", c.ttl).Result()
}

func (c *RedisCache) ReleaseTrigger(ctx context.Context, triggerID string) error {
	return c.rdb.Del(ctx, triggerKey(triggerID)).Err()
}
