// Package fs provides the file-backed docq.Cache.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/docq"
	"github.com/google/uuid"
)

// DirName is the directory created under the cache root.
const DirName = ".docq"

// Ext is the extension of cache entry files. Flush only removes files
// carrying it.
const Ext = ".docq"

// Ensure Cache implements docq.Cache at compile time.
var _ docq.Cache = (*Cache)(nil)

// Cache stores one file per entry. Files are written to a temporary name
// and renamed into place, so readers never observe a partial entry.
type Cache struct {
	dir string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewCache creates a Cache storing entries in root/.docq, creating the
// directory if needed.
func NewCache(root string) (*Cache, error) {
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, docq.Errorf(docq.EINVALID, "unable to create cache directory %s: %v", dir, err)
	}
	return &Cache{dir: dir, Now: time.Now}, nil
}

// Dir returns the directory holding the entry files.
func (c *Cache) Dir() string {
	return c.dir
}

// record is the on-disk form of an entry.
type record struct {
	Key     string    `json:"key"`
	Created time.Time `json:"created"`
	Expires time.Time `json:"expires"`
	Value   []byte    `json:"value"`
}

// Path returns the file an entry for key is stored in.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%x", xxhash.Sum64String(key))+Ext)
}

func (c *Cache) Get(ctx context.Context, key string) (*docq.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := c.Path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, docq.Errorf(docq.ENOTFOUND, "cache entry not found")
	}
	if err != nil {
		return nil, err
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding cache file %s: %w", path, err)
	}
	if r.Key != key {
		return nil, docq.Errorf(docq.ENOTFOUND, "cache entry not found")
	}

	e := &docq.Entry{Key: r.Key, Value: r.Value, CreatedAt: r.Created, ExpiresAt: r.Expires}
	if e.Expired(c.Now()) {
		_ = os.Remove(path)
		return nil, docq.Errorf(docq.ENOTFOUND, "cache entry expired")
	}
	return e, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl docq.TTL) (*docq.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := docq.NewEntry(key, value, ttl, c.Now())
	if e == nil {
		return nil, nil
	}

	data, err := json.Marshal(record{Key: e.Key, Created: e.CreatedAt, Expires: e.ExpiresAt, Value: e.Value})
	if err != nil {
		return nil, fmt.Errorf("encoding cache entry: %w", err)
	}

	tmp := filepath.Join(c.dir, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return nil, fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, c.Path(key)); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("writing cache file: %w", err)
	}
	return e, nil
}

func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := os.Remove(c.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) Flush(ctx context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if de.IsDir() || !strings.HasSuffix(de.Name(), Ext) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, de.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
