package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool the directory cache needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DirectoryCachePG keeps one JSONB payload per listing kind in the
// directory_cache table.
type DirectoryCachePG struct {
	db Querier
}

func NewDirectoryCachePG(db Querier) *DirectoryCachePG {
	return &DirectoryCachePG{db: db}
}

func (c *DirectoryCachePG) Save(ctx context.Context, kind string, payload []byte) error {
	_, err := c.db.Exec(ctx, `
		INSERT INTO directory_cache (kind, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (kind) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`,
		kind, payload)
	if err != nil {
		return fmt.Errorf("save directory cache %s: %w", kind, err)
	}
	return nil
}

// Load returns nil, nil when kind has never been saved.
func (c *DirectoryCachePG) Load(ctx context.Context, kind string) ([]byte, error) {
	var payload []byte
	err := c.db.QueryRow(ctx, `SELECT payload FROM directory_cache WHERE kind = $1`, kind).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load directory cache %s: %w", kind, err)
	}
	return payload, nil
}

// MemoryDirectoryCache is the process-local cache used when no cache
// database is configured.
type MemoryDirectoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryDirectoryCache() *MemoryDirectoryCache {
	return &MemoryDirectoryCache{entries: make(map[string][]byte)}
}

func (c *MemoryDirectoryCache) Save(_ context.Context, kind string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[kind] = append([]byte(nil), payload...)
	return nil
}

func (c *MemoryDirectoryCache) Load(_ context.Context, kind string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[kind]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), p...), nil
}
