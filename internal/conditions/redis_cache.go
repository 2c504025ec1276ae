package conditions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces conditions keys in a shared Redis.
const DefaultRedisPrefix = "weatherroute:conditions:"

// RedisCache is a Cache shared between API and worker processes.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// redisEntry is the stored form. Body is the verbatim backend response.
type redisEntry struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Body      json.RawMessage `json:"body"`
}

// NewRedisCache creates a cache on an existing client. An empty prefix
// uses DefaultRedisPrefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Get loads and decodes the entry for key.
func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var stored redisEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}

	rec, err := ParseRecord(stored.Body)
	if err != nil {
		return nil, false, err
	}

	return &Entry{Record: rec, FetchedAt: stored.FetchedAt}, true, nil
}

// Set stores entry under key with a Redis TTL.
func (c *RedisCache) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	body, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	data, err := json.Marshal(redisEntry{FetchedAt: entry.FetchedAt, Body: body})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Purge deletes every key under the prefix.
func (c *RedisCache) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return iter.Err()
}

// Len counts keys under the prefix.
func (c *RedisCache) Len(ctx context.Context) (int, error) {
	n := 0
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

var _ Cache = (*RedisCache)(nil)
