package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "api_key:"

// RedisCache is the KeyCache backend for multi-node deployments, where all
// gateway instances share one cache of key liveness.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection before
// returning. The URL uses the standard redis:// scheme.
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get implements KeyCache.
func (c *RedisCache) Get(ctx context.Context, keyHash string) (*Entry, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+keyHash).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeEntry(raw)
}

// Set implements KeyCache.
func (c *RedisCache) Set(ctx context.Context, keyHash string, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := c.client.Set(ctx, redisKeyPrefix+keyHash, encodeEntry(entry), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements KeyCache.
func (c *RedisCache) Delete(ctx context.Context, keyHash string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+keyHash).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
