package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fleet-route-planner/internal/ports"
)

func testEntry(n int) *ports.CachedMatrix {
	entry := &ports.CachedMatrix{
		Provider:     "osrm:test",
		CreatedAt:    time.Now().Truncate(time.Second),
		Size:         n,
		DistancesM:   make([][]int64, n),
		DurationsSec: make([][]int64, n),
	}
	for i := 0; i < n; i++ {
		entry.DistancesM[i] = make([]int64, n)
		entry.DurationsSec[i] = make([]int64, n)
		for j := 0; j < n; j++ {
			entry.DistancesM[i][j] = int64(i*100 + j)
			entry.DurationsSec[i][j] = int64(i*10 + j)
		}
	}
	return entry
}

func TestDiskCacheRoundTrip(t *testing.T) {
	c := NewDiskMatrixCache(t.TempDir(), time.Hour)
	ctx := context.Background()

	entry := testEntry(3)
	if err := c.Put(ctx, "abc123", entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := c.Get(ctx, "abc123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Provider != entry.Provider || got.Size != 3 {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if got.DistancesM[i][j] != entry.DistancesM[i][j] ||
				got.DurationsSec[i][j] != entry.DurationsSec[i][j] {
				t.Fatalf("grid mismatch at (%d,%d)", i, j)
			}
		}
	}
}

func TestDiskCacheMiss(t *testing.T) {
	c := NewDiskMatrixCache(t.TempDir(), time.Hour)
	if _, err := c.Get(context.Background(), "nothing"); !errors.Is(err, ports.ErrCacheMiss) {
		t.Fatalf("want ErrCacheMiss, got %v", err)
	}
}

func TestDiskCacheCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskMatrixCache(dir, time.Hour)

	if err := os.WriteFile(filepath.Join(dir, "bad.bin"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(context.Background(), "bad"); !errors.Is(err, ports.ErrCacheCorrupt) {
		t.Fatalf("want ErrCacheCorrupt, got %v", err)
	}
}

func TestDiskCacheExpiry(t *testing.T) {
	c := NewDiskMatrixCache(t.TempDir(), time.Hour)
	ctx := context.Background()

	if err := c.Put(ctx, "old", testEntry(2)); err != nil {
		t.Fatal(err)
	}

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := c.Get(ctx, "old"); !errors.Is(err, ports.ErrCacheMiss) {
		t.Fatalf("expired entry must be a miss, got %v", err)
	}
}

func TestDiskCachePurge(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskMatrixCache(dir, time.Hour)
	ctx := context.Background()

	if err := c.Put(ctx, "fresh", testEntry(2)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "junk.bin"), []byte{0xff, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := c.Purge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("purged %d entries, want 1 (the corrupt one)", removed)
	}
	if _, err := c.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh entry must survive purge: %v", err)
	}
}

func TestSchemaVersionMismatchIsCorrupt(t *testing.T) {
	entry := testEntry(2)
	data, err := encodeEntry(entry)
	if err != nil {
		t.Fatal(err)
	}
	data[0] = schemaVersion + 1

	if _, err := decodeEntry(data); !errors.Is(err, ports.ErrCacheCorrupt) {
		t.Fatalf("version mismatch must decode as corrupt, got %v", err)
	}
}
