package normalize

import (
	"time"

	"attestia/internal/provider"
)

// Calculator computes derived fields placed under calculated.* in the
// evaluation context.
type Calculator struct {
	now func() time.Time
}

func NewCalculator() *Calculator {
	return &Calculator{now: time.Now}
}

// WithClock substitutes the time source, for tests.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Derive fills ctx["calculated"] from the normalized apiData and the provider
// response metadata. Fields are only produced when their inputs are present.
func (c *Calculator) Derive(ctx map[string]any, responses []*provider.Response) {
	calculated, ok := ctx["calculated"].(map[string]any)
	if !ok {
		calculated = map[string]any{}
		ctx["calculated"] = calculated
	}
	apiData, _ := ctx["apiData"].(map[string]any)

	if score, ok := numberField(apiData, "creditScore"); ok {
		calculated["scoreBand"] = scoreBand(score)
	}
	if income, ok := numberField(apiData, "annualIncome"); ok {
		calculated["incomeBracket"] = incomeBracket(income)
	}
	calculated["confidence"] = c.confidence(responses)
}

// scoreBand buckets a credit score into the conventional reporting tiers.
func scoreBand(score float64) string {
	switch {
	case score >= 800:
		return "excellent"
	case score >= 740:
		return "very-good"
	case score >= 670:
		return "good"
	case score >= 580:
		return "fair"
	default:
		return "poor"
	}
}

// incomeBracket buckets annual income for privacy-preserving claims: the
// credential carries the bracket, never the raw figure.
func incomeBracket(income float64) string {
	switch {
	case income >= 150000:
		return "150k+"
	case income >= 100000:
		return "100k-150k"
	case income >= 50000:
		return "50k-100k"
	case income >= 25000:
		return "25k-50k"
	default:
		return "under-25k"
	}
}

// confidence weighs provider reliability against data age. Each successful
// response contributes reliability * freshnessFactor; the result is the mean
// over contributing responses, in [0,1]. Freshness decays linearly down to
// 0.5 over 72 hours.
func (c *Calculator) confidence(responses []*provider.Response) float64 {
	const (
		decayWindow = 72 * time.Hour
		floor       = 0.5
	)
	var sum float64
	var n int
	now := c.now()
	for _, resp := range responses {
		if resp == nil || !resp.Success {
			continue
		}
		factor := 1.0
		if !resp.Metadata.DataFreshness.IsZero() {
			age := now.Sub(resp.Metadata.DataFreshness)
			if age > 0 {
				decay := float64(age) / float64(decayWindow) * (1 - floor)
				if decay > 1-floor {
					decay = 1 - floor
				}
				factor = 1 - decay
			}
		}
		sum += resp.Metadata.Reliability * factor
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func numberField(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
