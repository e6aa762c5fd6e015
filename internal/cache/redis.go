// Package cache provides the counter store used by the request pipeline.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the Redis implementation of Store.
type Cache struct {
	client *redis.Client
}

var _ Store = (*Cache)(nil)

// New connects to redisURL and pings it. The pool is shared by the counter
// store, the identity cache and the events publisher.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{client: client}, nil
}

// Ping implements handler.HealthChecker.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client and its pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying client for the events publisher.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Get returns the raw value at key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

// Set stores value at key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// PushCapped prepends value and trims the list in one MULTI block.
func (c *Cache) PushCapped(ctx context.Context, key string, value []byte, max int64, ttl time.Duration) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, value)
		pipe.LTrim(ctx, key, 0, max-1)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis push capped failed: %w", err)
	}
	return nil
}

// ListRecent returns up to n list entries, newest first.
func (c *Cache) ListRecent(ctx context.Context, key string, n int64) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	values, err := c.client.LRange(ctx, key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out, nil
}
