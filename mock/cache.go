package mock

import (
	"context"

	"github.com/fwojciec/docq"
)

var _ docq.Cache = (*Cache)(nil)

// Cache is a mock implementation of docq.Cache.
type Cache struct {
	GetFn    func(ctx context.Context, key string) (*docq.Entry, error)
	SetFn    func(ctx context.Context, key string, value []byte, ttl docq.TTL) (*docq.Entry, error)
	DeleteFn func(ctx context.Context, key string) (bool, error)
	FlushFn  func(ctx context.Context) error
}

func (c *Cache) Get(ctx context.Context, key string) (*docq.Entry, error) {
	return c.GetFn(ctx, key)
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl docq.TTL) (*docq.Entry, error) {
	return c.SetFn(ctx, key, value, ttl)
}

func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	return c.DeleteFn(ctx, key)
}

func (c *Cache) Flush(ctx context.Context) error {
	return c.FlushFn(ctx)
}
