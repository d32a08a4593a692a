package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"attestia/internal/provider"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Caller executes one provider request and returns an immutable response.
// The aggregator depends on this port so tests can stub provider behavior.
type Caller interface {
	Call(ctx context.Context, p provider.Provider, req Request) (*provider.Response, error)
}

// HTTPCaller is the default HTTP protocol adapter for provider calls.
//
// It normalizes transport failures and status codes into provider error
// categories so the retry executor and failover logic work uniformly across
// providers.
type HTTPCaller struct {
	client  HTTPDoer
	timeout time.Duration
}

// NewHTTPCaller constructs the adapter. A nil client falls back to a
// http.Client bounded by the per-call timeout.
func NewHTTPCaller(client HTTPDoer, timeout time.Duration) *HTTPCaller {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPCaller{client: client, timeout: timeout}
}

// Call performs one provider request over HTTP.
func (c *HTTPCaller) Call(ctx context.Context, p provider.Provider, req Request) (*provider.Response, error) {
	start := time.Now()

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	bodyBytes, err := json.Marshal(req.Params)
	if err != nil {
		return nil, provider.NewError(provider.ErrorBadData, p.ID, "failed to marshal request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := p.BaseURL + req.Endpoint
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, provider.NewError(provider.ErrorInternal, p.ID, "failed to create request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if p.Auth.Type == provider.AuthAPIKey && p.Auth.APIKey != "" {
		httpReq.Header.Set("X-API-Key", p.Auth.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, provider.NewError(provider.ErrorTimeout, p.ID, "request timeout", err)
		}
		return nil, provider.NewError(provider.ErrorConnection, p.ID, "failed to execute request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewError(provider.ErrorBadData, p.ID, "failed to read response", err)
	}

	if err := classifyStatus(p.ID, resp.StatusCode); err != nil {
		return nil, err
	}

	var data map[string]any
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &data); err != nil {
			return nil, provider.NewError(provider.ErrorBadData, p.ID, "failed to parse response", err)
		}
	}

	now := time.Now()
	out := &provider.Response{
		Success: true,
		Data:    data,
		Metadata: provider.ResponseMeta{
			ProviderID:    p.ID,
			ResponseTime:  now.Sub(start),
			Timestamp:     now,
			DataFreshness: freshnessFrom(data, now),
			Reliability:   p.Reliability,
			CostIncurred:  p.CostPerCall,
		},
		RateLimit: rateLimitFrom(resp.Header),
	}
	return out, nil
}

// classifyStatus maps provider HTTP status codes onto the normalized error
// taxonomy. 429 and 5xx are transient; 4xx are permanent.
func classifyStatus(providerID string, status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return provider.NewError(provider.ErrorAuthentication, providerID,
			fmt.Sprintf("authentication failed: %d", status), nil)
	case status == http.StatusNotFound:
		return provider.NewError(provider.ErrorNotFound, providerID, "record not found", nil)
	case status == http.StatusTooManyRequests:
		return provider.NewError(provider.ErrorRateLimited, providerID, "rate limit exceeded", nil)
	case status >= 500:
		return provider.NewError(provider.ErrorProviderOutage, providerID,
			fmt.Sprintf("provider unavailable: %d", status), nil)
	default:
		return provider.NewError(provider.ErrorBadData, providerID,
			fmt.Sprintf("unexpected status code: %d", status), nil)
	}
}

// freshnessFrom reads the provider-declared freshness timestamp when present,
// falling back to the call time.
func freshnessFrom(data map[string]any, now time.Time) time.Time {
	if raw, ok := data["as_of"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts
		}
	}
	return now
}

func rateLimitFrom(h http.Header) *provider.RateLimitInfo {
	remaining := h.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return nil
	}
	n, err := strconv.Atoi(remaining)
	if err != nil {
		return nil
	}
	info := &provider.RateLimitInfo{Remaining: n}
	if after := h.Get("Retry-After"); after != "" {
		if secs, err := strconv.Atoi(after); err == nil {
			info.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return info
}
