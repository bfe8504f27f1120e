package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrPassLimit is returned when a subscription still had work after MaxPasses.
var ErrPassLimit = errors.New("pass limit reached")

// Interpreter is the part of weft.Interpreter the runner drives.
type Interpreter interface {
	EvaluateFrom(ctx context.Context, h weft.Handle, src ports.EffectSource) (*weft.Evaluation, error)
	Invalidate(effectID hash.Hash) bool
	GC() []*domain.Effect
}

// Runner resolves the effects of subscriptions until they settle.
type Runner struct {
	Interpreter Interpreter
	Store       ports.EffectStore

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	// Interceptor gates effects before their handler runs.
	// If nil, defaults to AutoApprove.
	Interceptor EffectInterceptor

	// Locker, when set, holds a lock on the subscription for the whole Run.
	Locker  ports.DistributedLocker
	LockTTL time.Duration

	// Limiter, when set, paces handler invocations across passes.
	Limiter *rate.Limiter

	MaxPasses   int
	Concurrency int

	mu       sync.RWMutex
	handlers map[string]Handler
}

// Report describes a finished Run.
type Report struct {
	Handle     weft.Handle
	Outcome    domain.Outcome
	Passes     int
	Dispatched int
	// Unhandled lists effects left pending because no handler takes their type.
	Unhandled []*domain.Effect
	Freed     int
}

// New creates a runner that evaluates against store.
func New(interp Interpreter, store ports.EffectStore, opts ...Option) *Runner {
	r := &Runner{
		Interpreter: interp,
		Store:       store,
		MaxPasses:   DefaultMaxPasses,
		Concurrency: DefaultConcurrency,
		LockTTL:     DefaultLockTTL,
		handlers:    make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	if r.Interceptor == nil {
		r.Interceptor = AutoApproveMiddleware()
	}
	return r
}

// Handle registers h for effects of type typ, replacing any earlier handler.
func (r *Runner) Handle(typ string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[typ] = h
}

func (r *Runner) handler(typ string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typ]
	return h, ok
}

// Run evaluates the subscription, dispatching its unresolved effects between
// passes, until it settles or nothing left pending has a handler.
func (r *Runner) Run(ctx context.Context, h weft.Handle) (*Report, error) {
	if r.Locker != nil {
		unlock, err := r.Locker.Lock(ctx, "subscription:"+string(h), r.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", h, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				r.Logger.Warn("Failed to release subscription lock", "subscription", h, "err", err)
			}
		}()
	}

	report := &Report{Handle: h}
	for report.Passes < r.MaxPasses {
		report.Passes++
		ev, err := r.Interpreter.EvaluateFrom(ctx, h, r.Store)
		if err != nil {
			return report, err
		}
		report.Outcome = ev.Outcome
		report.Unhandled = nil

		freed, err := r.collect(ctx)
		report.Freed += freed
		if err != nil {
			return report, err
		}

		if ev.Outcome.Status != domain.OutcomePending || len(ev.Unresolved) == 0 {
			r.Logger.Debug("Subscription settled", "subscription", h, "status", ev.Outcome.Status, "passes", report.Passes)
			return report, nil
		}

		dispatched, unhandled, err := r.dispatch(ctx, ev.Unresolved)
		report.Dispatched += dispatched
		report.Unhandled = unhandled
		if err != nil {
			return report, err
		}
		if dispatched == 0 {
			r.Logger.Info("No handler for pending effects", "subscription", h, "unhandled", len(unhandled))
			return report, nil
		}
	}
	return report, fmt.Errorf("%s after %d passes: %w", h, report.Passes, ErrPassLimit)
}

// dispatch runs the handlers of effects concurrently and records their results.
// Store failures are aggregated; handler failures become rejections.
func (r *Runner) dispatch(ctx context.Context, effects []*domain.Effect) (int, []*domain.Effect, error) {
	var (
		mu         sync.Mutex
		errs       *multierror.Error
		dispatched int
		unhandled  []*domain.Effect
	)

	g, gctx := errgroup.WithContext(ctx)
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}

	for _, e := range effects {
		h, ok := r.handler(e.Type)
		if !ok {
			unhandled = append(unhandled, e)
			continue
		}
		dispatched++

		g.Go(func() error {
			if err := r.perform(gctx, h, e); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
			}
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return dispatched, unhandled, err
	}
	return dispatched, unhandled, errs.ErrorOrNil()
}

func (r *Runner) perform(ctx context.Context, h Handler, e *domain.Effect) error {
	allowed, reason, err := r.Interceptor(ctx, e)
	if err != nil {
		return fmt.Errorf("intercept %s: %w", e.ID, err)
	}

	if !allowed {
		r.Logger.Warn("Effect blocked", "effect", e.ID, "type", e.Type, "reason", reason)
		err = r.Store.Reject(ctx, e, reason)
	} else {
		if r.Limiter != nil {
			if werr := r.Limiter.Wait(ctx); werr != nil {
				return fmt.Errorf("pace %s: %w", e.ID, werr)
			}
		}
		value, herr := h.Handle(ctx, e)
		if herr != nil {
			r.Logger.Debug("Effect failed", "effect", e.ID, "type", e.Type, "err", herr)
			err = r.Store.Reject(ctx, e, herr.Error())
		} else {
			err = r.Store.Resolve(ctx, e, value)
		}
	}
	if err != nil {
		return fmt.Errorf("store %s: %w", e.ID, err)
	}

	r.Interpreter.Invalidate(e.ID)
	return nil
}

// collect runs a minor collection and drops the freed effects from the store.
func (r *Runner) collect(ctx context.Context) (int, error) {
	freed := r.Interpreter.GC()
	if len(freed) == 0 {
		return 0, nil
	}
	ids := make([]hash.Hash, len(freed))
	for i, e := range freed {
		ids[i] = e.ID
	}
	if err := r.Store.Forget(ctx, ids...); err != nil {
		return 0, fmt.Errorf("forget freed effects: %w", err)
	}
	return len(freed), nil
}
