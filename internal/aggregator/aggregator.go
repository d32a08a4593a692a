// Package aggregator orchestrates multi-provider data fetching for
// credential issuance.
//
// Every fetch goes cache → rate-limit admission → retry-wrapped provider
// call → cache store. For critical data types a failed primary fails over to
// up to two backup providers in selector-score order.
package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"attestia/internal/aggregator/tracer"
	"attestia/internal/provider"
	"attestia/internal/provider/cache"
	"attestia/internal/provider/ratelimit"
	"attestia/internal/provider/retry"
	dErrors "attestia/pkg/domain-errors"
)

// maxBackupProviders bounds failover for critical data types.
const maxBackupProviders = 2

// criticalDataTypes lists data types where a failed fetch must fail over to
// backup providers before giving up.
var criticalDataTypes = map[string]bool{
	"identity-verification": true,
	"bank-account":          true,
	"credit-report":         true,
	"government-id":         true,
}

// CachePolicy controls caching for one request.
type CachePolicy struct {
	TTL      time.Duration
	Disabled bool
}

// Request names a single provider call.
type Request struct {
	ProviderID string
	Endpoint   string
	Method     string
	Params     map[string]string
	Retry      *retry.Policy
	Cache      *CachePolicy
	Urgent     bool // Fail fast on rate limit instead of waiting cooperatively
}

// FetchRequest is one entry of a batch fetch.
type FetchRequest struct {
	DataType string
	Params   map[string]string
}

// Config tunes the aggregator.
type Config struct {
	DefaultCacheTTL   time.Duration // Default TTL when a request has no cache policy
	InterRequestDelay time.Duration // Delay between same-provider calls in a batch
	RetryPolicy       retry.Policy
}

// Aggregator coordinates registry, selector, rate limiter, cache, and retry
// executor to fetch and normalize provider data.
type Aggregator struct {
	registry *provider.Registry
	selector *provider.Selector
	limiter  *ratelimit.Limiter
	cache    cache.Store
	caller   Caller
	cfg      Config
	tracer   tracer.Tracer
	logger   *slog.Logger
}

// Option configures the aggregator.
type Option func(*Aggregator)

// WithTracer overrides the default no-op tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(a *Aggregator) {
		a.tracer = t
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// New creates an aggregator with the required collaborators.
func New(registry *provider.Registry, limiter *ratelimit.Limiter, cacheStore cache.Store, caller Caller, cfg Config, opts ...Option) *Aggregator {
	if cfg.DefaultCacheTTL == 0 {
		cfg.DefaultCacheTTL = 5 * time.Minute
	}
	if cfg.InterRequestDelay == 0 {
		cfg.InterRequestDelay = 100 * time.Millisecond
	}
	if cfg.RetryPolicy.MaxAttempts == 0 {
		cfg.RetryPolicy = retry.DefaultPolicy()
	}
	a := &Aggregator{
		registry: registry,
		selector: provider.NewSelector(registry),
		limiter:  limiter,
		cache:    cacheStore,
		caller:   caller,
		cfg:      cfg,
		tracer:   tracer.NewNoop(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchForVC fetches data for one credential data type.
//
// The best-scoring provider is tried first. On failure of a critical data
// type, up to two backup providers are tried in score order; the failed
// primary's response stays in the returned list so evidence and audit trails
// see every attempt. The returned error is non-nil only when no provider
// produced a successful response.
func (a *Aggregator) FetchForVC(ctx context.Context, dataType string, params map[string]string) ([]*provider.Response, error) {
	ctx, span := a.tracer.Start(ctx, tracer.SpanFetchForVC,
		tracer.String(tracer.AttrDataType, dataType),
		tracer.Bool(tracer.AttrCritical, criticalDataTypes[dataType]),
	)

	ranked := a.selector.Rank(dataType)
	if len(ranked) == 0 {
		err := dErrors.Wrap(provider.ErrNoProvidersAvailable, dErrors.CodeProviderNotFound,
			"no provider serves data type "+dataType)
		span.End(err)
		return nil, err
	}

	var results []*provider.Response

	primary := ranked[0]
	resp, err := a.fetchFrom(ctx, primary, a.requestFor(primary, dataType, params))
	if err == nil {
		results = append(results, resp)
		span.End(nil)
		return results, nil
	}

	a.logger.Warn("primary provider failed",
		"provider_id", primary.ID,
		"data_type", dataType,
		"error", err,
	)
	results = append(results, failureResponse(primary, err))

	if !criticalDataTypes[dataType] {
		span.End(err)
		return results, dErrors.Wrap(err, dErrors.CodeInternal, "provider fetch failed")
	}

	// Critical type: walk backups in score order, excluding the failed
	// primary, stopping at the first success.
	backups := ranked[1:]
	if len(backups) > maxBackupProviders {
		backups = backups[:maxBackupProviders]
	}
	for i, backup := range backups {
		span.AddEvent("failover", tracer.String(tracer.AttrProviderID, backup.ID), tracer.Int64(tracer.AttrFailover, int64(i+1)))
		failoverTotal.WithLabelValues(dataType).Inc()

		resp, err := a.fetchFrom(ctx, backup, a.requestFor(backup, dataType, params))
		if err == nil {
			results = append(results, resp)
			span.End(nil)
			return results, nil
		}
		a.logger.Warn("backup provider failed",
			"provider_id", backup.ID,
			"data_type", dataType,
			"error", err,
		)
		results = append(results, failureResponse(backup, err))
	}

	finalErr := dErrors.Wrap(provider.ErrAllProvidersFailed, dErrors.CodeInternal,
		"all providers failed for data type "+dataType)
	span.End(finalErr)
	return results, finalErr
}

// BatchFetch fetches many data types, grouping requests by their best
// provider so per-provider rate limits are respected. Same-provider calls
// run sequentially with the configured inter-request delay; distinct
// providers run concurrently. The result slice is aligned with the request
// slice; failed entries carry a failure response, never a nil.
func (a *Aggregator) BatchFetch(ctx context.Context, requests []FetchRequest) []*provider.Response {
	ctx, span := a.tracer.Start(ctx, tracer.SpanBatchFetch,
		tracer.Int64("request_count", int64(len(requests))),
	)
	defer span.End(nil)

	results := make([]*provider.Response, len(requests))

	// Group request indexes by best provider.
	groups := make(map[string][]int)
	byID := make(map[string]provider.Provider)
	for i, req := range requests {
		best, ok := a.selector.SelectBest(a.selector.FindSuitable(req.DataType))
		if !ok {
			results[i] = &provider.Response{
				Success: false,
				Error:   provider.ErrNoProvidersAvailable.Error() + ": " + req.DataType,
			}
			continue
		}
		groups[best.ID] = append(groups[best.ID], i)
		byID[best.ID] = best
	}

	var wg sync.WaitGroup
	for providerID, indexes := range groups {
		wg.Add(1)
		go func(p provider.Provider, indexes []int) {
			defer wg.Done()
			for n, i := range indexes {
				if n > 0 {
					select {
					case <-ctx.Done():
						for _, rest := range indexes[n:] {
							results[rest] = failureResponse(p, ctx.Err())
						}
						return
					case <-time.After(a.cfg.InterRequestDelay):
					}
				}
				req := requests[i]
				resp, err := a.fetchFrom(ctx, p, a.requestFor(p, req.DataType, req.Params))
				if err != nil {
					results[i] = failureResponse(p, err)
					continue
				}
				results[i] = resp
			}
		}(byID[providerID], indexes)
	}
	wg.Wait()

	return results
}

// fetchFrom runs the full single-call pipeline against one provider:
// cache lookup, rate-limit admission, retry-wrapped call, cache store.
func (a *Aggregator) fetchFrom(ctx context.Context, p provider.Provider, req Request) (*provider.Response, error) {
	ctx, span := a.tracer.Start(ctx, tracer.SpanProviderCall,
		tracer.String(tracer.AttrProviderID, p.ID),
	)

	cachePolicy := req.Cache
	if cachePolicy == nil {
		cachePolicy = &CachePolicy{TTL: a.cfg.DefaultCacheTTL}
	}
	key := cache.Key(p.ID, req.Endpoint, req.Params)

	if !cachePolicy.Disabled && a.cache != nil {
		if cached, ok := a.cache.Get(ctx, key); ok {
			span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, true))
			span.End(nil)
			return cached, nil
		}
		span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, false))
	}

	if err := a.admit(ctx, p.ID, req.Urgent); err != nil {
		span.End(err)
		return nil, err
	}

	policy := a.cfg.RetryPolicy
	if req.Retry != nil {
		policy = *req.Retry
	}

	start := time.Now()
	resp, err := retry.Execute(ctx, func(ctx context.Context) (*provider.Response, error) {
		return a.caller.Call(ctx, p, req)
	}, policy)
	callDuration.WithLabelValues(p.ID).Observe(time.Since(start).Seconds())
	if err != nil {
		span.End(err)
		return nil, err
	}

	if !cachePolicy.Disabled && a.cache != nil {
		if err := a.cache.Put(ctx, key, resp, cachePolicy.TTL); err != nil {
			a.logger.Warn("cache store failed", "provider_id", p.ID, "error", err)
		}
	}

	span.End(nil)
	return resp, nil
}

// admit passes the call through the provider's token bucket. Urgent requests
// fail fast with rate_limit_exceeded; others wait cooperatively.
func (a *Aggregator) admit(ctx context.Context, providerID string, urgent bool) error {
	if a.limiter == nil {
		return nil
	}
	if urgent {
		if res := a.limiter.Allow(providerID); !res.Allowed {
			return dErrors.New(dErrors.CodeRateLimitExceeded,
				"rate limit exceeded for provider "+providerID)
		}
		return nil
	}
	return a.limiter.Wait(ctx, providerID)
}

func (a *Aggregator) requestFor(p provider.Provider, dataType string, params map[string]string) Request {
	return Request{
		ProviderID: p.ID,
		Endpoint:   "/data/" + dataType,
		Params:     params,
	}
}

// failureResponse records a failed attempt as an immutable value so callers
// and evidence trails see every provider that was tried.
func failureResponse(p provider.Provider, err error) *provider.Response {
	return &provider.Response{
		Success: false,
		Error:   err.Error(),
		Metadata: provider.ResponseMeta{
			ProviderID:  p.ID,
			Timestamp:   time.Now(),
			Reliability: p.Reliability,
		},
	}
}
