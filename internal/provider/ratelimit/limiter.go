// Package ratelimit implements per-provider token bucket admission control.
//
// Each provider gets one bucket; the bucket's token count is the single
// mutable counter shared across all in-flight requests for that provider.
// Every aggregator call path goes through Allow or Wait, so no request can
// bypass admission.
package ratelimit

import (
	"context"
	"sync"
	"time"

	dErrors "attestia/pkg/domain-errors"
)

// Limit configures a provider's bucket.
type Limit struct {
	RequestsPerSecond float64
	Burst             float64 // Bucket capacity; defaults to RequestsPerSecond
}

// Result reports the outcome of an admission check.
type Result struct {
	Allowed    bool
	Remaining  float64
	RetryAfter time.Duration // How long until one token refills; zero when allowed
}

// bucket is the aggregate root for one provider's rate limit state.
// Tokens refill continuously based on elapsed time since the last check.
type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// tryConsume takes one token if available. Must be called under the limiter lock.
func (b *bucket) tryConsume(now time.Time) Result {
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return Result{Allowed: true, Remaining: b.tokens}
	}
	deficit := 1 - b.tokens
	wait := time.Duration(deficit / b.refillRate * float64(time.Second))
	return Result{Allowed: false, Remaining: 0, RetryAfter: wait}
}

// Limiter holds token buckets for all providers.
// Safe for concurrent use; a single mutex guards the bucket map and the
// buckets themselves so concurrent callers cannot double-spend a token.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limits  map[string]Limit
	def     Limit
	now     func() time.Time
}

// Option configures the limiter.
type Option func(*Limiter)

// WithClock overrides the time source, used by tests to control refills.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter with a default limit applied to providers that have
// no explicit configuration.
func New(def Limit, opts ...Option) *Limiter {
	if def.RequestsPerSecond <= 0 {
		def.RequestsPerSecond = 10
	}
	if def.Burst <= 0 {
		def.Burst = def.RequestsPerSecond
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limits:  make(map[string]Limit),
		def:     def,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetLimit configures a provider-specific limit. Takes effect on the next
// admission check; an existing bucket is resized, keeping its current tokens
// clamped to the new capacity. The rate must be positive: a zero refill rate
// would make every wait computation divide by zero.
func (l *Limiter) SetLimit(providerID string, limit Limit) error {
	if limit.RequestsPerSecond <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput,
			"rate limit for "+providerID+" must be a positive requests-per-second value")
	}
	if limit.Burst <= 0 {
		limit.Burst = limit.RequestsPerSecond
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[providerID] = limit
	if b, ok := l.buckets[providerID]; ok {
		b.capacity = limit.Burst
		b.refillRate = limit.RequestsPerSecond
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	return nil
}

// Allow attempts to take one token for the provider without blocking.
func (l *Limiter) Allow(providerID string) Result {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	res := l.bucketFor(providerID, now).tryConsume(now)
	if res.Allowed {
		admittedTotal.WithLabelValues(providerID).Inc()
	} else {
		rejectedTotal.WithLabelValues(providerID).Inc()
	}
	return res
}

// Wait blocks until a token is available or the context is done.
// Returns a rate_limit_exceeded domain error on context expiry so callers can
// distinguish admission failure from other cancellation causes.
func (l *Limiter) Wait(ctx context.Context, providerID string) error {
	for {
		res := l.Allow(providerID)
		if res.Allowed {
			return nil
		}
		wait := res.RetryAfter
		if wait <= 0 {
			wait = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeRateLimitExceeded,
				"timed out waiting for rate limit admission: "+providerID)
		case <-time.After(wait):
		}
	}
}

// Tokens reports the current token count for a provider, refilled to now.
func (l *Limiter) Tokens(providerID string) float64 {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketFor(providerID, now)
	b.refill(now)
	return b.tokens
}

// bucketFor returns the provider's bucket, creating it full on first use.
// Must be called under the limiter lock.
func (l *Limiter) bucketFor(providerID string, now time.Time) *bucket {
	if b, ok := l.buckets[providerID]; ok {
		return b
	}
	limit, ok := l.limits[providerID]
	if !ok {
		limit = l.def
	}
	b := &bucket{
		tokens:     limit.Burst,
		capacity:   limit.Burst,
		refillRate: limit.RequestsPerSecond,
		lastRefill: now,
	}
	l.buckets[providerID] = b
	return b
}
