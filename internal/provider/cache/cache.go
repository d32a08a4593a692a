// Package cache implements the provider response cache.
//
// A cached response is served only while age < ttl * refreshThreshold; past
// that boundary the entry is treated as a miss so the aggregator re-fetches
// instead of silently returning stale data. Entries are snapshots of
// immutable provider responses, so last-writer-wins on concurrent Put to the
// same key is acceptable.
package cache

import (
	"context"
	"sort"
	"strings"
	"time"

	"attestia/internal/provider"
)

// Store is the response cache port. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns a snapshot of the cached response, or false on miss or
	// staleness.
	Get(ctx context.Context, key string) (*provider.Response, bool)

	// Put stores a snapshot of the response with the given TTL.
	Put(ctx context.Context, key string, resp *provider.Response, ttl time.Duration) error
}

// Key derives the deterministic cache key from the logical request identity.
// Parameters are sorted so identical logical requests collide regardless of
// map iteration order.
func Key(providerID, endpoint string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(providerID)
	b.WriteByte(':')
	b.WriteString(endpoint)
	for _, name := range names {
		b.WriteByte(':')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	return b.String()
}
