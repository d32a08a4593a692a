// Package provider defines the external data provider model and registry.
//
// Providers are external data sources (financial, professional, identity
// registries) queried to substantiate credential claims. A Provider record is
// an immutable value once registered; the registry supports replace-by-id so
// operators can roll capability or cost updates without restart.
package provider

import (
	"sync"
	"time"
)

// AuthType identifies how a provider authenticates calls.
type AuthType string

const (
	AuthAPIKey AuthType = "api_key"
	AuthOAuth2 AuthType = "oauth2"
	AuthNone   AuthType = "none"
)

// AuthConfig carries provider credentials. OAuth flows themselves are handled
// by an external collaborator; the pipeline only forwards the material.
type AuthConfig struct {
	Type   AuthType
	APIKey string
}

// DataCapability advertises one data type a provider can serve.
type DataCapability struct {
	Category          string // e.g. "financial", "identity", "professional"
	SubType           string // e.g. "credit-report", "bank-account"
	VerificationLevel string // e.g. "basic", "enhanced", "authoritative"
	FreshnessHours    int    // How long provider data stays representative
}

// Key returns the compound "category-subtype" lookup key.
func (c DataCapability) Key() string {
	if c.SubType == "" {
		return c.Category
	}
	return c.Category + "-" + c.SubType
}

// Provider is the metadata record for an external data source.
//
// Reliability is in [0,1]; CostPerCall and AvgLatency feed the selector's
// scoring formula. The record is treated as immutable after registration.
type Provider struct {
	ID                 string
	Name               string
	BaseURL            string
	SupportedDataTypes []DataCapability
	Reliability        float64
	CostPerCall        float64
	AvgLatency         time.Duration
	Auth               AuthConfig
}

// Registry maintains all registered providers indexed by their unique ID.
//
// Registration is idempotent by id: re-registering replaces the stored record
// but preserves the original registration order, which the selector uses for
// deterministic tie-breaking. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string // ids in first-registration order
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds or replaces a provider, keyed by its ID.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.providers[p.ID] = p
}

// Get returns the provider with the given id.
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// All returns every registered provider in registration order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.providers[id])
	}
	return result
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
