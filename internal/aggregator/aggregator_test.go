package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestia/internal/provider"
	"attestia/internal/provider/cache"
	"attestia/internal/provider/ratelimit"
	"attestia/internal/provider/retry"
	dErrors "attestia/pkg/domain-errors"
)

// stubCaller is a test double for the Caller port. Behavior is configured
// per provider id.
type stubCaller struct {
	mu    sync.Mutex
	fns   map[string]func(req Request) (*provider.Response, error)
	calls map[string]int
	times map[string][]time.Time
}

func newStubCaller() *stubCaller {
	return &stubCaller{
		fns:   make(map[string]func(req Request) (*provider.Response, error)),
		calls: make(map[string]int),
		times: make(map[string][]time.Time),
	}
}

func (c *stubCaller) on(providerID string, fn func(req Request) (*provider.Response, error)) {
	c.fns[providerID] = fn
}

func (c *stubCaller) succeed(providerID string) {
	c.on(providerID, func(Request) (*provider.Response, error) {
		return &provider.Response{
			Success: true,
			Data:    map[string]any{"verified": true},
			Metadata: provider.ResponseMeta{
				ProviderID:  providerID,
				Timestamp:   time.Now(),
				Reliability: 0.9,
			},
		}, nil
	})
}

func (c *stubCaller) fail(providerID string, category provider.ErrorCategory) {
	c.on(providerID, func(Request) (*provider.Response, error) {
		return nil, provider.NewError(category, providerID, "stubbed failure", nil)
	})
}

func (c *stubCaller) Call(_ context.Context, p provider.Provider, req Request) (*provider.Response, error) {
	c.mu.Lock()
	c.calls[p.ID]++
	c.times[p.ID] = append(c.times[p.ID], time.Now())
	fn := c.fns[p.ID]
	c.mu.Unlock()
	if fn == nil {
		return nil, provider.NewError(provider.ErrorInternal, p.ID, "no stub configured", nil)
	}
	return fn(req)
}

func (c *stubCaller) callCount(providerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[providerID]
}

type AggregatorSuite struct {
	suite.Suite
	registry *provider.Registry
	caller   *stubCaller
	ctx      context.Context
}

func (s *AggregatorSuite) SetupTest() {
	s.registry = provider.NewRegistry()
	s.caller = newStubCaller()
	s.ctx = context.Background()
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) registerProvider(id string, reliability float64, dataTypes ...string) {
	caps := make([]provider.DataCapability, 0, len(dataTypes))
	for _, dt := range dataTypes {
		caps = append(caps, provider.DataCapability{Category: dt})
	}
	s.registry.Register(provider.Provider{
		ID:                 id,
		Reliability:        reliability,
		CostPerCall:        1,
		AvgLatency:         100 * time.Millisecond,
		SupportedDataTypes: caps,
	})
}

// newAggregator builds an aggregator with fast retries and a fresh cache.
func (s *AggregatorSuite) newAggregator(opts ...Option) *Aggregator {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = 1
	return New(
		s.registry,
		ratelimit.New(ratelimit.Limit{RequestsPerSecond: 1000}),
		cache.NewInMemoryStore(0.8),
		s.caller,
		Config{RetryPolicy: policy, InterRequestDelay: 5 * time.Millisecond},
		opts...,
	)
}

func (s *AggregatorSuite) TestFetchHappyPath() {
	s.registerProvider("experian", 0.95, "credit-report")
	s.caller.succeed("experian")

	responses, err := s.newAggregator().FetchForVC(s.ctx, "credit-report", map[string]string{"subject": "x"})
	s.Require().NoError(err)
	s.Require().Len(responses, 1)
	s.True(responses[0].Success)
	s.Equal("experian", responses[0].Metadata.ProviderID)
}

func (s *AggregatorSuite) TestNoProviderForDataType() {
	_, err := s.newAggregator().FetchForVC(s.ctx, "employment", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeProviderNotFound))
}

func (s *AggregatorSuite) TestSecondFetchServedFromCache() {
	s.registerProvider("experian", 0.95, "credit-report")
	s.caller.succeed("experian")
	agg := s.newAggregator()

	params := map[string]string{"subject": "x"}
	_, err := agg.FetchForVC(s.ctx, "credit-report", params)
	s.Require().NoError(err)
	_, err = agg.FetchForVC(s.ctx, "credit-report", params)
	s.Require().NoError(err)

	s.Equal(1, s.caller.callCount("experian"), "second call must hit the cache")
}

func (s *AggregatorSuite) TestDistinctParamsBypassCache() {
	s.registerProvider("experian", 0.95, "credit-report")
	s.caller.succeed("experian")
	agg := s.newAggregator()

	_, _ = agg.FetchForVC(s.ctx, "credit-report", map[string]string{"subject": "a"})
	_, _ = agg.FetchForVC(s.ctx, "credit-report", map[string]string{"subject": "b"})

	s.Equal(2, s.caller.callCount("experian"))
}

// TestCriticalTypeFailover pins the failover contract: a failing primary for a
// critical type fails over to backups; the returned list carries the
// primary's failure and exactly one backup success.
func (s *AggregatorSuite) TestCriticalTypeFailover() {
	s.registerProvider("primary", 0.99, "identity-verification")
	s.registerProvider("backup1", 0.80, "identity-verification")
	s.registerProvider("backup2", 0.70, "identity-verification")
	s.caller.fail("primary", provider.ErrorProviderOutage)
	s.caller.succeed("backup1")
	s.caller.succeed("backup2")

	responses, err := s.newAggregator().FetchForVC(s.ctx, "identity-verification", map[string]string{"subject": "x"})
	s.Require().NoError(err)
	s.Require().Len(responses, 2)

	s.False(responses[0].Success)
	s.Equal("primary", responses[0].Metadata.ProviderID)
	s.NotEmpty(responses[0].Error)

	s.True(responses[1].Success)
	s.Equal("backup1", responses[1].Metadata.ProviderID)

	s.Equal(0, s.caller.callCount("backup2"), "failover stops at first success")
}

func (s *AggregatorSuite) TestNonCriticalTypeDoesNotFailOver() {
	s.registerProvider("primary", 0.99, "employment")
	s.registerProvider("backup", 0.80, "employment")
	s.caller.fail("primary", provider.ErrorProviderOutage)
	s.caller.succeed("backup")

	responses, err := s.newAggregator().FetchForVC(s.ctx, "employment", nil)
	s.Error(err)
	s.Len(responses, 1)
	s.Equal(0, s.caller.callCount("backup"))
}

func (s *AggregatorSuite) TestFailoverBoundedToTwoBackups() {
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		s.registerProvider(id, 0.9, "government-id")
		s.caller.fail(id, provider.ErrorProviderOutage)
	}

	responses, err := s.newAggregator().FetchForVC(s.ctx, "government-id", nil)
	s.Error(err)
	s.Len(responses, 3, "primary plus at most two backups")
	s.Equal(0, s.caller.callCount("p4"))
}

func (s *AggregatorSuite) TestAllProvidersFailedSurfacesEveryAttempt() {
	s.registerProvider("p1", 0.9, "bank-account")
	s.registerProvider("p2", 0.8, "bank-account")
	s.caller.fail("p1", provider.ErrorTimeout)
	s.caller.fail("p2", provider.ErrorTimeout)

	responses, err := s.newAggregator().FetchForVC(s.ctx, "bank-account", nil)
	s.ErrorIs(err, provider.ErrAllProvidersFailed)
	s.Len(responses, 2)
	for _, r := range responses {
		s.False(r.Success)
		s.NotEmpty(r.Error)
	}
}

func (s *AggregatorSuite) TestBatchFetchAlignsResultsWithRequests() {
	s.registerProvider("experian", 0.95, "credit-report")
	s.registerProvider("onfido", 0.9, "identity-verification")
	s.caller.succeed("experian")
	s.caller.succeed("onfido")

	responses := s.newAggregator().BatchFetch(s.ctx, []FetchRequest{
		{DataType: "credit-report", Params: map[string]string{"subject": "a"}},
		{DataType: "identity-verification", Params: map[string]string{"subject": "a"}},
		{DataType: "unknown-type"},
	})

	s.Require().Len(responses, 3)
	s.Equal("experian", responses[0].Metadata.ProviderID)
	s.Equal("onfido", responses[1].Metadata.ProviderID)
	s.False(responses[2].Success)
}

func (s *AggregatorSuite) TestBatchFetchSerializesSameProviderCalls() {
	s.registerProvider("experian", 0.95, "credit-report")
	s.caller.succeed("experian")

	s.newAggregator().BatchFetch(s.ctx, []FetchRequest{
		{DataType: "credit-report", Params: map[string]string{"subject": "a"}},
		{DataType: "credit-report", Params: map[string]string{"subject": "b"}},
	})

	s.caller.mu.Lock()
	times := s.caller.times["experian"]
	s.caller.mu.Unlock()
	s.Require().Len(times, 2)
	s.GreaterOrEqual(times[1].Sub(times[0]), 5*time.Millisecond,
		"same-provider calls must respect the inter-request delay")
}

func (s *AggregatorSuite) TestUrgentRequestFailsFastOnRateLimit() {
	s.registerProvider("experian", 0.95, "credit-report")
	s.caller.succeed("experian")

	limiter := ratelimit.New(ratelimit.Limit{RequestsPerSecond: 0.001, Burst: 1})
	agg := New(s.registry, limiter, cache.NewInMemoryStore(0.8), s.caller, Config{})

	// Drain the single token.
	s.True(limiter.Allow("experian").Allowed)

	_, err := agg.fetchFrom(s.ctx, mustGet(s.registry, "experian"), Request{
		Endpoint: "/data/credit-report",
		Urgent:   true,
		Cache:    &CachePolicy{Disabled: true},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimitExceeded))
}

func mustGet(r *provider.Registry, id string) provider.Provider {
	p, _ := r.Get(id)
	return p
}
