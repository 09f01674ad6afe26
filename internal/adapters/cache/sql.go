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

// SQLMatrixCache is a Postgres-backed matrix cache (pgx stdlib driver).
// It shares the binary payload layout with the other backends so a
// deployment can switch backends without a format migration.
type SQLMatrixCache struct {
	DB  *sql.DB
	TTL time.Duration

	now func() time.Time
}

func NewSQLMatrixCache(db *sql.DB, ttl time.Duration) *SQLMatrixCache {
	return &SQLMatrixCache{DB: db, TTL: ttl, now: time.Now}
}

// InitSQLSchema creates the cache table when missing.
func InitSQLSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS matrix_cache (
		key        TEXT PRIMARY KEY,
		provider   TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		payload    BYTEA NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("init matrix_cache schema: %w", err)
	}
	return nil
}

func (c *SQLMatrixCache) Get(ctx context.Context, key string) (*ports.CachedMatrix, error) {
	if c.DB == nil {
		return nil, errors.New("matrix cache: db is nil")
	}

	var payload []byte
	err := c.DB.QueryRowContext(ctx,
		`SELECT payload FROM matrix_cache WHERE key = $1;`, key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		obs.CacheEvents.WithLabelValues("postgres", "miss").Inc()
		return nil, ports.ErrCacheMiss
	}
	if err != nil {
		obs.CacheEvents.WithLabelValues("postgres", "error").Inc()
		return nil, fmt.Errorf("get matrix cache %s: %w", key, err)
	}

	entry, err := decodeEntry(payload)
	if err != nil {
		obs.CacheEvents.WithLabelValues("postgres", "corrupt").Inc()
		return nil, fmt.Errorf("matrix cache %s: %w", key, err)
	}
	if expired(entry, c.TTL, c.now()) {
		obs.CacheEvents.WithLabelValues("postgres", "expired").Inc()
		return nil, ports.ErrCacheMiss
	}

	obs.CacheEvents.WithLabelValues("postgres", "hit").Inc()
	return entry, nil
}

func (c *SQLMatrixCache) Put(ctx context.Context, key string, entry *ports.CachedMatrix) error {
	if c.DB == nil {
		return errors.New("matrix cache: db is nil")
	}

	payload, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("put matrix cache %s: %w", key, err)
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put matrix cache %s: begin: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO matrix_cache (key, provider, created_at, payload)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (key) DO UPDATE
	SET provider = EXCLUDED.provider,
		created_at = EXCLUDED.created_at,
		payload = EXCLUDED.payload;
	`, key, entry.Provider, entry.CreatedAt.Unix(), payload)
	if err != nil {
		return fmt.Errorf("put matrix cache %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put matrix cache %s: commit: %w", key, err)
	}
	return nil
}
