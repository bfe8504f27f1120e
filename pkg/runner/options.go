package runner

import (
	"log/slog"
	"time"

	"github.com/aretw0/weft/pkg/ports"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxPasses bounds the evaluation passes of one Run.
	DefaultMaxPasses = 16
	// DefaultConcurrency is the number of handlers that may run at once.
	DefaultConcurrency = 8
	// DefaultLockTTL is how long a Run's subscription lock lives.
	DefaultLockTTL = 30 * time.Second
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithMaxPasses bounds the evaluation passes of one Run.
func WithMaxPasses(n int) Option {
	return func(r *Runner) {
		r.MaxPasses = n
	}
}

// WithConcurrency limits how many handlers run at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		r.Concurrency = n
	}
}

// WithInterceptor configures the effect execution middleware.
func WithInterceptor(interceptor EffectInterceptor) Option {
	return func(r *Runner) {
		r.Interceptor = interceptor
	}
}

// WithLocker serializes runs of the same subscription across processes.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(r *Runner) {
		r.Locker = locker
		r.LockTTL = ttl
	}
}

// WithRateLimit caps handler invocations at limit per second with the given burst.
// A limit of rate.Inf disables pacing.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(r *Runner) {
		if limit == rate.Inf {
			r.Limiter = nil
			return
		}
		r.Limiter = rate.NewLimiter(limit, burst)
	}
}

// WithHandler registers h for effects of type typ.
func WithHandler(typ string, h Handler) Option {
	return func(r *Runner) {
		r.Handle(typ, h)
	}
}
