// Package normalize maps raw provider payloads into the canonical claim
// context consumed by templates and issuance rules.
package normalize

import (
	"sync"
	"time"

	"attestia/internal/provider"
)

// Func converts one provider's raw payload into canonical field names.
// Normalizers must not mutate the input map.
type Func func(raw map[string]any) map[string]any

// Registry maps provider ids to normalizers. Providers without a registered
// normalizer pass through unchanged.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register installs a normalizer for the given provider, replacing any
// existing one.
func (r *Registry) Register(providerID string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[providerID] = fn
}

// Apply normalizes raw data from the given provider.
func (r *Registry) Apply(providerID string, raw map[string]any) map[string]any {
	r.mu.RLock()
	fn := r.funcs[providerID]
	r.mu.RUnlock()
	if fn == nil {
		return passThrough(raw)
	}
	return fn(raw)
}

func passThrough(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}

// BuildContext assembles the evaluation context for claim mappings and rules:
//
//	now        current time (RFC 3339)
//	apiData    normalized provider payloads, merged in response order
//	calculated derived values (filled in by the Calculator)
//
// Later responses win on key conflicts, matching the aggregator's
// primary-then-failover response ordering where the successful response
// comes last.
func (r *Registry) BuildContext(responses []*provider.Response, now time.Time) map[string]any {
	apiData := make(map[string]any)
	for _, resp := range responses {
		if resp == nil || !resp.Success {
			continue
		}
		for k, v := range r.Apply(resp.Metadata.ProviderID, resp.Data) {
			apiData[k] = v
		}
	}
	return map[string]any{
		"now":        now.UTC().Format(time.RFC3339),
		"apiData":    apiData,
		"calculated": map[string]any{},
	}
}
