package notify

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 5 * time.Second

// Guarded bounds every delivery of the wrapped Dispatcher with a timeout
// and, optionally, a token bucket rate limit. The timeout also covers the
// time spent waiting for a token.
type Guarded struct {
	next    Dispatcher
	timeout time.Duration
	limiter *rate.Limiter
}

// GuardOption configures a Guarded dispatcher.
type GuardOption func(*Guarded)

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		g.timeout = d
	}
}

// WithRateLimit allows perSecond deliveries with the given burst.
// A non-positive perSecond disables rate limiting.
func WithRateLimit(perSecond float64, burst int) GuardOption {
	return func(g *Guarded) {
		if perSecond <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewGuarded wraps next. The default timeout is DefaultTimeout and there is
// no rate limit.
func NewGuarded(next Dispatcher, opts ...GuardOption) *Guarded {
	g := &Guarded{
		next:    next,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Notify implements Dispatcher.
func (g *Guarded) Notify(ctx context.Context, n Notification) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	return g.next.Notify(ctx, n)
}
