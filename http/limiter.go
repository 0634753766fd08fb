package http

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/fwojciec/docq"
	"golang.org/x/time/rate"
)

// HostLimiter spaces requests per host. Every host gets its own token
// bucket with a burst of 1, so a throttled host never delays the others.
type HostLimiter struct {
	limit rate.Limit

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewHostLimiter allows rps requests per second to each host.
// A non-positive rps disables limiting.
func NewHostLimiter(rps float64) *HostLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &HostLimiter{
		limit:   limit,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *HostLimiter) bucket(host string) *rate.Limiter {
	host = strings.ToLower(host)
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[host]
	if !ok {
		b = rate.NewLimiter(l.limit, 1)
		l.buckets[host] = b
	}
	return b
}

// Wait blocks until a request to host is allowed or ctx is done.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	return l.bucket(host).Wait(ctx)
}

// WaitURL is Wait for the host of target.
func (l *HostLimiter) WaitURL(ctx context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return docq.Errorf(docq.EINVALID, "invalid URL %q: %v", target, err)
	}
	return l.Wait(ctx, u.Host)
}
