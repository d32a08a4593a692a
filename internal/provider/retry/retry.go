// Package retry implements the bounded-attempt backoff wrapper around
// fallible provider operations.
package retry

import (
	"context"
	"math"
	"time"

	"attestia/internal/provider"
	dErrors "attestia/pkg/domain-errors"
)

// Policy configures the retry executor for one operation.
//
// The delay before attempt n (1-based) is
// min(BaseDelay * Multiplier^(n-1), MaxDelay). Only errors whose normalized
// category appears in RetryableCategories are retried; everything else
// propagates immediately without consuming remaining attempts.
type Policy struct {
	MaxAttempts         int
	BaseDelay           time.Duration
	MaxDelay            time.Duration
	Multiplier          float64
	RetryableCategories []provider.ErrorCategory
}

// DefaultPolicy mirrors the transient failure set providers commonly emit:
// connection resets, timeouts, 429 and 5xx-style outages.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
		RetryableCategories: []provider.ErrorCategory{
			provider.ErrorConnection,
			provider.ErrorTimeout,
			provider.ErrorRateLimited,
			provider.ErrorProviderOutage,
		},
	}
}

// Delay returns the backoff delay applied before the given retry attempt
// (attempt 1 is the delay before the second call).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if capped := float64(p.MaxDelay); d > capped {
		d = capped
	}
	return time.Duration(d)
}

func (p Policy) retryable(err error) bool {
	cat := provider.GetCategory(err)
	for _, c := range p.RetryableCategories {
		if c == cat {
			return true
		}
	}
	return false
}

// Operation is a single fallible provider call.
type Operation func(ctx context.Context) (*provider.Response, error)

// Execute runs op under the policy. Non-retryable errors propagate
// immediately. Exhausting all attempts surfaces the last error wrapped with
// the retry_exhausted code so callers can distinguish a dead provider from a
// rejected request.
func Execute(ctx context.Context, op Operation, p Policy) (*provider.Response, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.Delay(attempt - 1)):
			}
		}

		resp, err := op(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !p.retryable(err) {
			return nil, err
		}
	}

	return nil, dErrors.Wrap(lastErr, dErrors.CodeRetryExhausted, "retries exhausted")
}
