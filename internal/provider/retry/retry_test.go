package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestia/internal/provider"
	dErrors "attestia/pkg/domain-errors"
)

type RetrySuite struct {
	suite.Suite
}

func TestRetrySuite(t *testing.T) {
	suite.Run(t, new(RetrySuite))
}

// fastPolicy keeps test wall time negligible while preserving the shape of
// the backoff schedule.
func fastPolicy(maxAttempts int) Policy {
	p := DefaultPolicy()
	p.MaxAttempts = maxAttempts
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 4 * time.Millisecond
	return p
}

func (s *RetrySuite) TestDelayScheduleCappedByMaxDelay() {
	p := Policy{BaseDelay: 1000 * time.Millisecond, MaxDelay: 5000 * time.Millisecond, Multiplier: 2}

	want := []time.Duration{1000, 2000, 4000, 5000, 5000, 5000}
	for i, ms := range want {
		s.Equal(ms*time.Millisecond, p.Delay(i+1), "attempt %d", i+1)
	}
}

func (s *RetrySuite) TestSuccessFirstAttempt() {
	calls := 0
	resp, err := Execute(context.Background(), func(context.Context) (*provider.Response, error) {
		calls++
		return &provider.Response{Success: true}, nil
	}, fastPolicy(3))

	s.NoError(err)
	s.True(resp.Success)
	s.Equal(1, calls)
}

func (s *RetrySuite) TestRetriesTransientThenSucceeds() {
	calls := 0
	resp, err := Execute(context.Background(), func(context.Context) (*provider.Response, error) {
		calls++
		if calls < 3 {
			return nil, provider.NewError(provider.ErrorTimeout, "experian", "slow upstream", nil)
		}
		return &provider.Response{Success: true}, nil
	}, fastPolicy(5))

	s.NoError(err)
	s.True(resp.Success)
	s.Equal(3, calls)
}

func (s *RetrySuite) TestNonRetryablePropagatesImmediately() {
	calls := 0
	_, err := Execute(context.Background(), func(context.Context) (*provider.Response, error) {
		calls++
		return nil, provider.NewError(provider.ErrorAuthentication, "experian", "bad api key", nil)
	}, fastPolicy(5))

	s.Error(err)
	s.Equal(1, calls, "permanent errors must not consume attempts")

	var pe *provider.Error
	s.Require().True(errors.As(err, &pe))
	s.Equal(provider.ErrorAuthentication, pe.Category)
}

func (s *RetrySuite) TestExhaustionTagsLastError() {
	calls := 0
	_, err := Execute(context.Background(), func(context.Context) (*provider.Response, error) {
		calls++
		return nil, provider.NewError(provider.ErrorProviderOutage, "experian", "503", nil)
	}, fastPolicy(3))

	s.Equal(3, calls)
	s.True(dErrors.HasCode(err, dErrors.CodeRetryExhausted))

	var pe *provider.Error
	s.Require().True(errors.As(err, &pe), "exhaustion must wrap the last provider error")
	s.Equal(provider.ErrorProviderOutage, pe.Category)
}

func (s *RetrySuite) TestContextCancellationAbortsBackoffWait() {
	p := fastPolicy(3)
	p.BaseDelay = time.Minute
	p.MaxDelay = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Execute(ctx, func(context.Context) (*provider.Response, error) {
		return nil, provider.NewError(provider.ErrorTimeout, "experian", "timeout", nil)
	}, p)

	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *RetrySuite) TestCustomCategoriesOnlyRetryListed() {
	p := fastPolicy(3)
	p.RetryableCategories = []provider.ErrorCategory{provider.ErrorConnection}

	calls := 0
	_, err := Execute(context.Background(), func(context.Context) (*provider.Response, error) {
		calls++
		return nil, provider.NewError(provider.ErrorTimeout, "experian", "timeout", nil)
	}, p)

	s.Error(err)
	s.Equal(1, calls, "timeout is not in the configured retryable set")
}
