package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ErrBlobNotFound is returned by BlobCache implementations when a key has no
// stored payload. Absence is not a failure, callers fall back to inline data.
var ErrBlobNotFound = errors.New("blob not found in cache")

// BlobCache is the binary asset cache collaborator. Lookups must honor ctx -
// the resolver fans them out concurrently and may be cancelled mid-flight.
type BlobCache interface {
	GetBlob(ctx context.Context, key string) ([]byte, error)
}

// SQLiteCache keeps cached binary assets in a single-table SQLite database.
// Safe for concurrent use, every lookup takes a pooled connection.
type SQLiteCache struct {
	pool *sqlitex.Pool
}

const cacheSchema = `CREATE TABLE IF NOT EXISTS blobs (
	key  TEXT PRIMARY KEY,
	data BLOB NOT NULL
) WITHOUT ROWID;`

// OpenSQLiteCache opens (creating when missing) an asset cache database.
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate,
		PoolSize: 8,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open asset cache %q: %w", path, err)
	}
	c := &SQLiteCache{pool: pool}
	if err := c.init(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCache) init(ctx context.Context) error {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer c.pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, cacheSchema, nil); err != nil {
		return fmt.Errorf("unable to prepare asset cache schema: %w", err)
	}
	return nil
}

// GetBlob implements BlobCache.
func (c *SQLiteCache) GetBlob(ctx context.Context, key string) ([]byte, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer c.pool.Put(conn)

	var data []byte
	found := false
	err = sqlitex.Execute(conn, `SELECT data FROM blobs WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			data = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, data)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("asset cache lookup failed for %q: %w", key, err)
	}
	if !found {
		return nil, ErrBlobNotFound
	}
	return data, nil
}

// PutBlob stores a payload under key, replacing any previous value. Used by
// the machinery which populates the cache and by tests.
func (c *SQLiteCache) PutBlob(ctx context.Context, key string, data []byte) error {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer c.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO blobs (key, data) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET data = excluded.data`, &sqlitex.ExecOptions{
		Args: []any{key, data},
	})
	if err != nil {
		return fmt.Errorf("asset cache store failed for %q: %w", key, err)
	}
	return nil
}

// Close releases the connection pool.
func (c *SQLiteCache) Close() error {
	return c.pool.Close()
}

// MemoryCache is a trivial map-backed BlobCache for tests and in-process use.
type MemoryCache struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{blobs: make(map[string][]byte)}
}

func (c *MemoryCache) GetBlob(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (c *MemoryCache) PutBlob(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blobs[key] = data
}
