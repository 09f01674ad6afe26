package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"fleet-route-planner/internal/ports"
)

func testRedisCache(t *testing.T) (*RedisMatrixCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisMatrixCache(client, time.Hour), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, _ := testRedisCache(t)
	ctx := context.Background()

	entry := testEntry(3)
	if err := c.Put(ctx, "key1", entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Size != 3 || got.Provider != entry.Provider {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if got.DistancesM[2][1] != entry.DistancesM[2][1] {
		t.Fatalf("grid mismatch")
	}
}

func TestRedisCacheMiss(t *testing.T) {
	c, _ := testRedisCache(t)
	if _, err := c.Get(context.Background(), "absent"); !errors.Is(err, ports.ErrCacheMiss) {
		t.Fatalf("want ErrCacheMiss, got %v", err)
	}
}

func TestRedisCacheServerSideExpiry(t *testing.T) {
	c, mr := testRedisCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "ttl", testEntry(2)); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Hour)

	if _, err := c.Get(ctx, "ttl"); !errors.Is(err, ports.ErrCacheMiss) {
		t.Fatalf("server-expired entry must be a miss, got %v", err)
	}
}

func TestRedisCacheCorruptPayload(t *testing.T) {
	c, mr := testRedisCache(t)

	mr.Set(redisKeyPrefix+"bad", "not a matrix")
	if _, err := c.Get(context.Background(), "bad"); !errors.Is(err, ports.ErrCacheCorrupt) {
		t.Fatalf("want ErrCacheCorrupt, got %v", err)
	}
}
