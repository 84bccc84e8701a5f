package limiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter caps outgoing requests per second. A burst of the same size is
// allowed so a fresh limiter does not stall the first page of work.
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(maxRequests int) *RateLimiter {
	if maxRequests <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(maxRequests), maxRequests)}
}

// Allow reports whether a request may run now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a request may run or ctx ends.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
