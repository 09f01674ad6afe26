package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fleet-route-planner/internal/platform/obs"
	"fleet-route-planner/internal/ports"
)

// SqliteMatrixCache is a SQLite-backed matrix cache. The payload blob
// uses the same binary layout as the disk backend.
type SqliteMatrixCache struct {
	DB  *sql.DB
	TTL time.Duration

	now func() time.Time
}

func NewSqliteMatrixCache(db *sql.DB, ttl time.Duration) *SqliteMatrixCache {
	return &SqliteMatrixCache{DB: db, TTL: ttl, now: time.Now}
}

// InitSqliteSchema creates the cache table when missing.
func InitSqliteSchema(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS matrix_cache (
		key        TEXT PRIMARY KEY,
		provider   TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		payload    BLOB NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("init matrix_cache schema: %w", err)
	}
	return nil
}

func (c *SqliteMatrixCache) Get(ctx context.Context, key string) (*ports.CachedMatrix, error) {
	if c.DB == nil {
		return nil, errors.New("matrix cache: db is nil")
	}

	var payload []byte
	err := c.DB.QueryRowContext(ctx,
		`SELECT payload FROM matrix_cache WHERE key = ?;`, key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		obs.CacheEvents.WithLabelValues("sqlite", "miss").Inc()
		return nil, ports.ErrCacheMiss
	}
	if err != nil {
		obs.CacheEvents.WithLabelValues("sqlite", "error").Inc()
		return nil, fmt.Errorf("get matrix cache %s: %w", key, err)
	}

	entry, err := decodeEntry(payload)
	if err != nil {
		obs.CacheEvents.WithLabelValues("sqlite", "corrupt").Inc()
		return nil, fmt.Errorf("matrix cache %s: %w", key, err)
	}
	if expired(entry, c.TTL, c.now()) {
		obs.CacheEvents.WithLabelValues("sqlite", "expired").Inc()
		return nil, ports.ErrCacheMiss
	}

	obs.CacheEvents.WithLabelValues("sqlite", "hit").Inc()
	return entry, nil
}

func (c *SqliteMatrixCache) Put(ctx context.Context, key string, entry *ports.CachedMatrix) error {
	if c.DB == nil {
		return errors.New("matrix cache: db is nil")
	}

	payload, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("put matrix cache %s: %w", key, err)
	}

	_, err = c.DB.ExecContext(ctx, `
	INSERT INTO matrix_cache (key, provider, created_at, payload)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (key) DO UPDATE
	SET provider = EXCLUDED.provider,
		created_at = EXCLUDED.created_at,
		payload = EXCLUDED.payload;
	`, key, entry.Provider, entry.CreatedAt.Unix(), payload)
	if err != nil {
		return fmt.Errorf("put matrix cache %s: %w", key, err)
	}
	return nil
}
