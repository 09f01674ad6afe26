package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fleet-route-planner/internal/platform/obs"
	"fleet-route-planner/internal/ports"
)

// DiskMatrixCache stores one {hex_hash}.bin file per entry under Dir.
// Writes go to a temp file and are renamed into place, so readers never
// observe a half-written entry.
type DiskMatrixCache struct {
	Dir string
	TTL time.Duration

	now func() time.Time // test hook
}

func NewDiskMatrixCache(dir string, ttl time.Duration) *DiskMatrixCache {
	return &DiskMatrixCache{Dir: dir, TTL: ttl, now: time.Now}
}

func (c *DiskMatrixCache) path(key string) string {
	return filepath.Join(c.Dir, key+".bin")
}

func (c *DiskMatrixCache) Get(ctx context.Context, key string) (*ports.CachedMatrix, error) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			obs.CacheEvents.WithLabelValues("disk", "miss").Inc()
			return nil, ports.ErrCacheMiss
		}
		obs.CacheEvents.WithLabelValues("disk", "error").Inc()
		return nil, fmt.Errorf("read cache entry %s: %w", key, err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		obs.CacheEvents.WithLabelValues("disk", "corrupt").Inc()
		return nil, fmt.Errorf("cache entry %s: %w", key, err)
	}
	if expired(entry, c.TTL, c.now()) {
		obs.CacheEvents.WithLabelValues("disk", "expired").Inc()
		return nil, ports.ErrCacheMiss
	}

	obs.CacheEvents.WithLabelValues("disk", "hit").Inc()
	return entry, nil
}

func (c *DiskMatrixCache) Put(ctx context.Context, key string, entry *ports.CachedMatrix) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("put cache entry %s: %w", key, err)
	}

	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir %s: %w", c.Dir, err)
	}

	tmp, err := os.CreateTemp(c.Dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp cache file: %w", err)
	}

	if err := os.Rename(tmpName, c.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename cache entry %s: %w", key, err)
	}
	return nil
}

// Purge removes expired entries and returns how many were deleted.
// Unreadable files count as expired.
func (c *DiskMatrixCache) Purge(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cache dir %s: %w", c.Dir, err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}
		path := filepath.Join(c.Dir, e.Name())
		data, err := os.ReadFile(path)
		stale := err != nil
		if !stale {
			entry, err := decodeEntry(data)
			stale = err != nil || expired(entry, c.TTL, c.now())
		}
		if stale {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// List enumerates entries for diagnostics: key, provider, size and age.
func (c *DiskMatrixCache) List(ctx context.Context) ([]EntryInfo, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache dir %s: %w", c.Dir, err)
	}

	var out []EntryInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".bin")
		data, err := os.ReadFile(filepath.Join(c.Dir, e.Name()))
		if err != nil {
			continue
		}
		entry, err := decodeEntry(data)
		if err != nil {
			out = append(out, EntryInfo{Key: key, Corrupt: true})
			continue
		}
		out = append(out, EntryInfo{
			Key:       key,
			Provider:  entry.Provider,
			Size:      entry.Size,
			CreatedAt: entry.CreatedAt,
			Expired:   expired(entry, c.TTL, c.now()),
		})
	}
	return out, nil
}

// EntryInfo describes one cache entry for the cachetool listing.
type EntryInfo struct {
	Key       string
	Provider  string
	Size      int
	CreatedAt time.Time
	Expired   bool
	Corrupt   bool
}
