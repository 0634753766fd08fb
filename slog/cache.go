package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/docq"
)

// Ensure LoggingCache implements docq.Cache.
var _ docq.Cache = (*LoggingCache)(nil)

// LoggingCache wraps a Cache with debug logging. Misses are not errors and
// are logged as hit=false.
type LoggingCache struct {
	next   docq.Cache
	logger *slog.Logger
}

// NewLoggingCache creates a new LoggingCache.
func NewLoggingCache(next docq.Cache, logger *slog.Logger) *LoggingCache {
	return &LoggingCache{next: next, logger: logger}
}

// Get delegates to the wrapped cache and logs the lookup.
func (c *LoggingCache) Get(ctx context.Context, key string) (e *docq.Entry, err error) {
	defer func(begin time.Time) {
		logErr := err
		if docq.ErrorCode(err) == docq.ENOTFOUND {
			logErr = nil
		}
		c.logger.Debug("cache get",
			"key", key,
			"hit", e != nil,
			"duration", time.Since(begin),
			"err", logErr,
		)
	}(time.Now())
	return c.next.Get(ctx, key)
}

// Set delegates to the wrapped cache and logs the write.
func (c *LoggingCache) Set(ctx context.Context, key string, value []byte, ttl docq.TTL) (e *docq.Entry, err error) {
	defer func(begin time.Time) {
		c.logger.Debug("cache set",
			"key", key,
			"bytes", len(value),
			"ttl", ttl.String(),
			"stored", e != nil,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return c.next.Set(ctx, key, value, ttl)
}

// Delete delegates to the wrapped cache and logs the removal.
func (c *LoggingCache) Delete(ctx context.Context, key string) (deleted bool, err error) {
	defer func(begin time.Time) {
		c.logger.Debug("cache delete",
			"key", key,
			"deleted", deleted,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return c.next.Delete(ctx, key)
}

// Flush delegates to the wrapped cache and logs the operation.
func (c *LoggingCache) Flush(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		c.logger.Info("cache flush",
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return c.next.Flush(ctx)
}
