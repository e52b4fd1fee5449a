package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/lowest-price-service/internal/model"
)

const redisKeyPrefix = "price:lowest:"

// Redis is the production regional cache backend.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis wraps an existing client with the lowest-price key schema.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// OpenRedis connects to a Redis instance and verifies the connection.
func OpenRedis(addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedis(client, ttl), nil
}

// Get implements Cache.
func (c *Redis) Get(ctx context.Context, sku string) (model.PriceEntry, bool, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+sku).Bytes()
	if err == redis.Nil {
		return model.PriceEntry{}, false, nil
	}
	if err != nil {
		return model.PriceEntry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var e model.PriceEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return model.PriceEntry{}, false, fmt.Errorf("unmarshal cached entry: %w", err)
	}
	return e, true, nil
}

// Put implements Cache.
func (c *Redis) Put(ctx context.Context, sku string, e model.PriceEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+sku, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Invalidate implements Cache.
func (c *Redis) Invalidate(ctx context.Context, sku string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+sku).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
