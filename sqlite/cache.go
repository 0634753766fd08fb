package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fwojciec/docq"
)

// Compile-time interface verification.
var _ docq.Cache = (*Cache)(nil)

// Cache implements docq.Cache using the cache_entries table.
type Cache struct {
	db *DB

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewCache creates a new Cache on an opened DB.
func NewCache(db *DB) *Cache {
	return &Cache{db: db, Now: time.Now}
}

// Get retrieves a live entry. Expired rows are deleted on read.
func (c *Cache) Get(ctx context.Context, key string) (*docq.Entry, error) {
	var value []byte
	var createdAt, expiresAt string

	err := c.db.QueryRowContext(ctx, `
		SELECT value, created_at, expires_at
		FROM cache_entries
		WHERE cache_key = ?
	`, key).Scan(&value, &createdAt, &expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, docq.Errorf(docq.ENOTFOUND, "cache entry not found")
	}
	if err != nil {
		return nil, err
	}

	e := &docq.Entry{Key: key, Value: value}
	if e.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if e.ExpiresAt, err = parseTime(expiresAt, "expires_at"); err != nil {
		return nil, err
	}

	if e.Expired(c.Now()) {
		if _, err := c.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, docq.Errorf(docq.ENOTFOUND, "cache entry expired")
	}
	return e, nil
}

// Set stores value under key, replacing any previous entry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl docq.TTL) (*docq.Entry, error) {
	e := docq.NewEntry(key, value, ttl, c.Now())
	if e == nil {
		return nil, nil
	}

	_, err := c.db.ExecContext(ctx, `
		REPLACE INTO cache_entries (cache_key, value, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, e.Key, e.Value, formatTime(e.CreatedAt), formatTime(e.ExpiresAt))
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Delete removes key and reports whether a row was removed.
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	result, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Flush removes every entry.
func (c *Cache) Flush(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	return err
}

// Purge removes expired entries and returns how many were removed.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM cache_entries
		WHERE expires_at != '' AND expires_at <= ?
	`, formatTime(c.Now()))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, err
}
