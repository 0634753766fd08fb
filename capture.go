package docq

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// Capturer caches generated output by key. Begin either replays cached
// content or opens a Capture region that buffers output until Commit or
// Cancel. Regions nest: pass an open Capture as the writer of an inner
// region and the inner output lands in the outer buffer.
type Capturer struct {
	cache Cache

	// Logger reports cache failures, which are otherwise treated as misses.
	Logger *slog.Logger

	mu   sync.Mutex
	open []*Capture
}

// NewCapturer returns a Capturer storing content in cache.
func NewCapturer(cache Cache) *Capturer {
	return &Capturer{cache: cache, Logger: slog.New(slog.DiscardHandler)}
}

// Begin looks up key. On a hit the cached content is written to w and hit
// is true. On a miss a new innermost region is opened; everything written to
// it is delivered to w on Commit. A failing cache counts as a miss.
func (c *Capturer) Begin(ctx context.Context, w io.Writer, key string, ttl TTL) (capture *Capture, hit bool, err error) {
	if ttl.Cacheable() {
		e, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			if _, err := w.Write(e.Value); err != nil {
				return nil, false, err
			}
			return nil, true, nil
		case ErrorCode(err) != ENOTFOUND:
			c.Logger.Warn("cache read failed", "key", key, "err", err)
		}
	}

	capture = &Capture{c: c, ctx: ctx, w: w, key: key, ttl: ttl}
	c.mu.Lock()
	c.open = append(c.open, capture)
	c.mu.Unlock()
	return capture, false, nil
}

// Read returns the cached content for key.
func (c *Capturer) Read(ctx context.Context, key string) ([]byte, error) {
	e, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

// Write stores value under key.
func (c *Capturer) Write(ctx context.Context, key string, value []byte, ttl TTL) error {
	_, err := c.cache.Set(ctx, key, value, ttl)
	return err
}

// Delete removes key from the cache.
func (c *Capturer) Delete(ctx context.Context, key string) (bool, error) {
	return c.cache.Delete(ctx, key)
}

// Flush empties the cache.
func (c *Capturer) Flush(ctx context.Context) error {
	return c.cache.Flush(ctx)
}

// pop closes capture if it is the innermost open region.
func (c *Capturer) pop(capture *Capture) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.open); n == 0 || c.open[n-1] != capture {
		return Errorf(EINVALID, "capture %q is not the innermost open region", capture.key)
	}
	c.open = c.open[:len(c.open)-1]
	return nil
}

// Capture is an open output region. It must be finished with Commit,
// CommitFor or Cancel; finishing twice is a no-op, so deferring Cancel
// right after Begin is safe.
type Capture struct {
	c    *Capturer
	ctx  context.Context
	w    io.Writer
	key  string
	ttl  TTL
	buf  bytes.Buffer
	done bool
}

// Key returns the cache key the region stores to.
func (cp *Capture) Key() string { return cp.key }

// Write buffers p.
func (cp *Capture) Write(p []byte) (int, error) {
	if cp.done {
		return 0, Errorf(EINVALID, "capture %q already finished", cp.key)
	}
	return cp.buf.Write(p)
}

// Commit stores the buffered content with the TTL given to Begin and writes
// it to the underlying writer.
func (cp *Capture) Commit() error {
	return cp.CommitFor(cp.ttl)
}

// CommitFor is Commit with an explicit TTL.
func (cp *Capture) CommitFor(ttl TTL) error {
	if cp.done {
		return nil
	}
	if err := cp.c.pop(cp); err != nil {
		return err
	}
	cp.done = true

	content := cp.buf.Bytes()
	_, setErr := cp.c.cache.Set(cp.ctx, cp.key, bytes.Clone(content), ttl)
	_, writeErr := cp.w.Write(content)
	return errors.Join(setErr, writeErr)
}

// Cancel discards the buffered content without caching it.
func (cp *Capture) Cancel() error {
	if cp.done {
		return nil
	}
	if err := cp.c.pop(cp); err != nil {
		return err
	}
	cp.done = true
	cp.buf.Reset()
	return nil
}
