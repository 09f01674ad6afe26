package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fleet-route-planner/internal/platform/obs"
	"fleet-route-planner/internal/ports"
)

const redisKeyPrefix = "matrix:"

// RedisMatrixCache stores entries in Redis with the TTL enforced by the
// server. The payload reuses the shared binary layout.
type RedisMatrixCache struct {
	Client *redis.Client
	TTL    time.Duration

	now func() time.Time
}

func NewRedisMatrixCache(client *redis.Client, ttl time.Duration) *RedisMatrixCache {
	return &RedisMatrixCache{Client: client, TTL: ttl, now: time.Now}
}

func (c *RedisMatrixCache) Get(ctx context.Context, key string) (*ports.CachedMatrix, error) {
	if c.Client == nil {
		return nil, errors.New("matrix cache: redis client is nil")
	}

	payload, err := c.Client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		obs.CacheEvents.WithLabelValues("redis", "miss").Inc()
		return nil, ports.ErrCacheMiss
	}
	if err != nil {
		obs.CacheEvents.WithLabelValues("redis", "error").Inc()
		return nil, fmt.Errorf("get matrix cache %s: %w", key, err)
	}

	entry, err := decodeEntry(payload)
	if err != nil {
		obs.CacheEvents.WithLabelValues("redis", "corrupt").Inc()
		return nil, fmt.Errorf("matrix cache %s: %w", key, err)
	}
	// Server-side expiry is authoritative, but an entry written with a
	// longer TTL by an older process is still re-checked here.
	if expired(entry, c.TTL, c.now()) {
		obs.CacheEvents.WithLabelValues("redis", "expired").Inc()
		return nil, ports.ErrCacheMiss
	}

	obs.CacheEvents.WithLabelValues("redis", "hit").Inc()
	return entry, nil
}

func (c *RedisMatrixCache) Put(ctx context.Context, key string, entry *ports.CachedMatrix) error {
	if c.Client == nil {
		return errors.New("matrix cache: redis client is nil")
	}

	payload, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("put matrix cache %s: %w", key, err)
	}

	if err := c.Client.Set(ctx, redisKeyPrefix+key, payload, c.TTL).Err(); err != nil {
		return fmt.Errorf("put matrix cache %s: %w", key, err)
	}
	return nil
}
