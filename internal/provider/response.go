package provider

import "time"

// ResponseMeta carries call metadata captured once per provider call.
type ResponseMeta struct {
	ProviderID    string
	ResponseTime  time.Duration
	Timestamp     time.Time
	DataFreshness time.Time // When the provider last refreshed the underlying record
	Reliability   float64   // Provider reliability at time of call
	CostIncurred  float64
}

// RateLimitInfo reports provider-side throttling hints when present.
type RateLimitInfo struct {
	Remaining  int
	RetryAfter time.Duration
}

// Response is the immutable value record produced once per provider call.
// Cache copies are snapshots; nothing mutates a Response after creation.
type Response struct {
	Success   bool
	Data      map[string]any
	Error     string
	Metadata  ResponseMeta
	RateLimit *RateLimitInfo
}

// Clone returns a deep copy so cached responses stay snapshots even if a
// caller mutates the returned Data map.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Data != nil {
		cp.Data = make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			cp.Data[k] = v
		}
	}
	if r.RateLimit != nil {
		rl := *r.RateLimit
		cp.RateLimit = &rl
	}
	return &cp
}
