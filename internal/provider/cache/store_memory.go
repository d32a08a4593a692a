package cache

import (
	"context"
	"sync"
	"time"

	"attestia/internal/provider"
)

type entry struct {
	resp     *provider.Response
	cachedAt time.Time
	ttl      time.Duration
}

// InMemoryStore is a mutex-guarded map cache for tests and single-node use.
// Expired entries are lazily evicted when a stale read observes them.
type InMemoryStore struct {
	mu               sync.RWMutex
	entries          map[string]entry
	refreshThreshold float64
	now              func() time.Time
}

// Option configures the in-memory store.
type Option func(*InMemoryStore)

// WithClock overrides the time source, used by tests to control entry age.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

// NewInMemoryStore constructs a cache with the given refresh threshold in
// (0,1]; e.g. 0.8 makes an entry stale at 80% of its TTL.
func NewInMemoryStore(refreshThreshold float64, opts ...Option) *InMemoryStore {
	if refreshThreshold <= 0 || refreshThreshold > 1 {
		refreshThreshold = 0.8
	}
	s := &InMemoryStore{
		entries:          make(map[string]entry),
		refreshThreshold: refreshThreshold,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a snapshot while the entry is fresh. A stale hit is removed and
// reported as a miss.
func (s *InMemoryStore) Get(_ context.Context, key string) (*provider.Response, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		missesTotal.Inc()
		return nil, false
	}

	age := s.now().Sub(e.cachedAt)
	if float64(age) >= float64(e.ttl)*s.refreshThreshold {
		s.mu.Lock()
		// Recheck under the write lock; a concurrent Put may have refreshed it.
		if cur, ok := s.entries[key]; ok && cur.cachedAt.Equal(e.cachedAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		missesTotal.Inc()
		return nil, false
	}

	hitsTotal.Inc()
	return e.resp.Clone(), true
}

// Put stores a snapshot of the response. Last writer wins on racing puts.
func (s *InMemoryStore) Put(_ context.Context, key string, resp *provider.Response, ttl time.Duration) error {
	if resp == nil || ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{
		resp:     resp.Clone(),
		cachedAt: s.now(),
		ttl:      ttl,
	}
	return nil
}

// Len reports current entry count, including not-yet-evicted stale entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
