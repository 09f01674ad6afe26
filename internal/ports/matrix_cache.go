package ports

import (
	"context"
	"time"
)

// CachedMatrix is the payload a matrix cache stores per key: the raw
// grids plus enough metadata to validate an entry.
type CachedMatrix struct {
	Provider     string
	CreatedAt    time.Time
	Size         int
	DistancesM   [][]int64
	DurationsSec [][]int64
}

// MatrixCache persists built matrices keyed by a stable content hash.
// Get returns ErrCacheMiss for absent or expired entries and
// ErrCacheCorrupt for unreadable ones.
type MatrixCache interface {
	Get(ctx context.Context, key string) (*CachedMatrix, error)
	Put(ctx context.Context, key string, entry *CachedMatrix) error
}
