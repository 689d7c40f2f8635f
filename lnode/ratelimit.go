package lnode

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// rateLimiterRejectedTotal counts calls denied for lack of a token, the
// token-bucket analogue of breakerFailuresTotal.
var rateLimiterRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lnode",
	Subsystem: "ratelimit",
	Name:      "rejected_total",
	Help:      "Calls rejected by the outbound rate limiter for lack of an available token.",
})

// RateLimiter throttles outbound operations with a token bucket (spec
// §5: 100 tokens, 10/sec refill by default). It wraps golang.org/x/time,
// already a teacher dependency, rather than hand-rolling token-bucket
// arithmetic.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter constructs a limiter refilling refillPerSec tokens per
// second up to a burst capacity of burst.
func NewRateLimiter(burst int, refillPerSec float64) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(refillPerSec), burst),
	}
}

// Allow reports whether a token is immediately available, consuming one
// if so.
func (r *RateLimiter) Allow() bool {
	ok := r.limiter.Allow()
	if !ok {
		rateLimiterRejectedTotal.Inc()
	}
	return ok
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
