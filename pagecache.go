package blogconsole

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// PageCache stores rendered storefront pages. Pages are grouped by producer
// so a producer's whole storefront can be dropped after a post changes.
type PageCache interface {
	Get(ctx context.Context, producerID, path string) ([]byte, bool, error)
	Set(ctx context.Context, producerID, path string, page []byte) error
	InvalidateProducer(ctx context.Context, producerID string) error
}

func pagePrefix(producerID string) string {
	return "storefront:" + producerID + ":"
}

func pageKey(producerID, path string) string {
	return pagePrefix(producerID) + path
}

// MemoryPageCache keeps pages in process.
type MemoryPageCache struct {
	items *gocache.Cache
}

// NewMemoryPageCache creates a cache whose pages expire after ttl.
func NewMemoryPageCache(ttl time.Duration) *MemoryPageCache {
	return &MemoryPageCache{items: gocache.New(ttl, 2*ttl)}
}

func (c *MemoryPageCache) Get(_ context.Context, producerID, path string) ([]byte, bool, error) {
	v, ok := c.items.Get(pageKey(producerID, path))
	if !ok {
		return nil, false, nil
	}
	page, ok := v.([]byte)
	return bytes.Clone(page), ok, nil
}

func (c *MemoryPageCache) Set(_ context.Context, producerID, path string, page []byte) error {
	c.items.SetDefault(pageKey(producerID, path), bytes.Clone(page))
	return nil
}

func (c *MemoryPageCache) InvalidateProducer(_ context.Context, producerID string) error {
	prefix := pagePrefix(producerID)
	for key := range c.items.Items() {
		if strings.HasPrefix(key, prefix) {
			c.items.Delete(key)
		}
	}
	return nil
}

// NewRedisClient connects to the Redis described by cfg.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisPageCache shares pages between console instances. Every producer
// has an index set listing its page keys, which is what InvalidateProducer
// deletes from.
type RedisPageCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPageCache(client *redis.Client, ttl time.Duration) *RedisPageCache {
	return &RedisPageCache{client: client, ttl: ttl}
}

func pageIndexKey(producerID string) string {
	return "storefront-index:" + producerID
}

func (c *RedisPageCache) Get(ctx context.Context, producerID, path string) ([]byte, bool, error) {
	page, err := c.client.Get(ctx, pageKey(producerID, path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blogconsole: page cache get: %w", err)
	}
	return page, true, nil
}

func (c *RedisPageCache) Set(ctx context.Context, producerID, path string, page []byte) error {
	key := pageKey(producerID, path)
	if err := c.client.Set(ctx, key, page, c.ttl).Err(); err != nil {
		return fmt.Errorf("blogconsole: page cache set: %w", err)
	}
	index := pageIndexKey(producerID)
	if err := c.client.SAdd(ctx, index, key).Err(); err != nil {
		return fmt.Errorf("blogconsole: page cache index: %w", err)
	}
	if err := c.client.Expire(ctx, index, c.ttl).Err(); err != nil {
		return fmt.Errorf("blogconsole: page cache index ttl: %w", err)
	}
	return nil
}

func (c *RedisPageCache) InvalidateProducer(ctx context.Context, producerID string) error {
	index := pageIndexKey(producerID)
	keys, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("blogconsole: page cache index: %w", err)
	}
	if err := c.client.Del(ctx, append(keys, index)...).Err(); err != nil {
		return fmt.Errorf("blogconsole: page cache invalidate: %w", err)
	}
	return nil
}

// HealthCheck pings Redis.
func (c *RedisPageCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
