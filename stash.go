package docq

import (
	"context"
	"sync"
	"time"
)

var _ Cache = (*Stash)(nil)

// Stash is an in-memory overlay in front of another Cache. Reads are served
// from memory while the remembered entry is fresh; otherwise the backend is
// consulted and its answer remembered.
type Stash struct {
	backend Cache

	mu  sync.RWMutex
	mem map[string]*Entry

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewStash returns a Stash over backend.
func NewStash(backend Cache) *Stash {
	return &Stash{
		backend: backend,
		mem:     make(map[string]*Entry),
		Now:     time.Now,
	}
}

// Get implements docq.Cache.
func (s *Stash) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	e, ok := s.mem[key]
	s.mu.RUnlock()
	if ok && !e.Expired(s.Now()) {
		return e, nil
	}

	e, err := s.backend.Get(ctx, key)
	if err != nil {
		if ErrorCode(err) == ENOTFOUND {
			s.forget(key)
		}
		return nil, err
	}
	s.remember(key, e)
	return e, nil
}

// Set implements docq.Cache.
func (s *Stash) Set(ctx context.Context, key string, value []byte, ttl TTL) (*Entry, error) {
	if !ttl.Cacheable() {
		return nil, nil
	}
	e, err := s.backend.Set(ctx, key, value, ttl)
	if err != nil {
		return nil, err
	}
	if e != nil {
		s.remember(key, e)
	}
	return e, nil
}

// Delete implements docq.Cache.
func (s *Stash) Delete(ctx context.Context, key string) (bool, error) {
	s.forget(key)
	return s.backend.Delete(ctx, key)
}

// Flush implements docq.Cache.
func (s *Stash) Flush(ctx context.Context) error {
	s.mu.Lock()
	clear(s.mem)
	s.mu.Unlock()
	return s.backend.Flush(ctx)
}

func (s *Stash) remember(key string, e *Entry) {
	s.mu.Lock()
	s.mem[key] = e
	s.mu.Unlock()
}

func (s *Stash) forget(key string) {
	s.mu.Lock()
	delete(s.mem, key)
	s.mu.Unlock()
}
