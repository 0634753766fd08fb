package mock

import (
	"context"

	"github.com/fwojciec/docq"
)

var _ docq.Fetcher = (*Fetcher)(nil)

// Fetcher is a mock implementation of docq.Fetcher.
type Fetcher struct {
	FetchFn func(ctx context.Context, req *docq.Request, ttl docq.TTL) (*docq.Download, error)
}

func (f *Fetcher) Fetch(ctx context.Context, req *docq.Request, ttl docq.TTL) (*docq.Download, error) {
	return f.FetchFn(ctx, req, ttl)
}
