package docq

import (
	"context"
	"time"
)

// Entry is a cached value together with its bookkeeping timestamps.
type Entry struct {
	Key       string
	Value     []byte
	CreatedAt time.Time
	// ExpiresAt is zero for entries that never expire.
	ExpiresAt time.Time
}

// NewEntry builds the entry a backend should store for value under ttl,
// or nil when ttl bypasses caching.
func NewEntry(key string, value []byte, ttl TTL, now time.Time) *Entry {
	if !ttl.Cacheable() {
		return nil
	}
	return &Entry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: ttl.ExpiresAt(now),
	}
}

// Expired reports whether the entry is no longer valid at now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Cache stores byte values by key with an expiration policy.
type Cache interface {
	// Get returns the live entry for key. ENOTFOUND when the key is absent
	// or has expired.
	Get(ctx context.Context, key string) (*Entry, error)
	// Set stores value under key. It returns (nil, nil) without touching
	// storage when ttl is Bypass.
	Set(ctx context.Context, key string, value []byte, ttl TTL) (*Entry, error)
	// Delete removes key and reports whether an entry was removed.
	Delete(ctx context.Context, key string) (bool, error)
	// Flush removes every entry.
	Flush(ctx context.Context) error
}
