package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/docq"
)

// Ensure LoggingFetcher implements docq.Fetcher.
var _ docq.Fetcher = (*LoggingFetcher)(nil)

// LoggingFetcher wraps a Fetcher with logging.
type LoggingFetcher struct {
	next   docq.Fetcher
	logger *slog.Logger
}

// NewLoggingFetcher creates a new LoggingFetcher.
func NewLoggingFetcher(next docq.Fetcher, logger *slog.Logger) *LoggingFetcher {
	return &LoggingFetcher{next: next, logger: logger}
}

// Fetch delegates to the wrapped fetcher and logs the operation.
func (f *LoggingFetcher) Fetch(ctx context.Context, req *docq.Request, ttl docq.TTL) (d *docq.Download, err error) {
	defer func(begin time.Time) {
		attrs := []any{
			"url", req.Target(),
			"method", string(req.Method()),
			"ttl", ttl.String(),
		}
		if d != nil {
			attrs = append(attrs, "status", d.StatusCode, "bytes", len(d.Body), "cached", d.Cached)
		}
		attrs = append(attrs, "duration", time.Since(begin), "err", err)
		f.logger.Info("fetch", attrs...)
	}(time.Now())
	return f.next.Fetch(ctx, req, ttl)
}
