package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a token-bucket rate limit so that
// concurrent audit workers cannot overwhelm the completion backend
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited creates a rate-limited wrapper around a provider
func NewRateLimited(inner Provider, requestsPerSecond float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 5
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Name returns the wrapped provider's name
func (r *RateLimited) Name() string {
	return r.inner.Name()
}

// Complete waits for rate limit clearance and delegates to the wrapped provider
func (r *RateLimited) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Complete(ctx, req)
}

// IsAvailable delegates to the wrapped provider
func (r *RateLimited) IsAvailable(ctx context.Context) bool {
	return r.inner.IsAvailable(ctx)
}
