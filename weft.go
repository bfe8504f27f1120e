package weft

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/google/uuid"
)

// Handle identifies a subscription.
type Handle string

// Limits are the evaluator ceilings; zero fields take runtime defaults.
type Limits = runtime.Limits

// Evaluation is the answer to one Evaluate call.
type Evaluation struct {
	Outcome domain.Outcome
	// Result is the terminal expression the root resolved to.
	Result domain.Expression
	// Unresolved lists the effects that were still pending, without duplicates.
	Unresolved []*domain.Effect
}

// Stats is a snapshot of the interpreter's counters.
type Stats struct {
	runtime.Stats
	Nodes         int    `json:"nodes"`
	Subscriptions int    `json:"subscriptions"`
	Tick          uint64 `json:"tick"`
	Collected     uint64 `json:"collected"`
}

type subscription struct {
	handle      Handle
	root        domain.Expression
	candidates  []cache.Index
	lastVisited uint64
}

// Interpreter owns one dependency graph and the subscriptions evaluated against
// it. Calls are serialized; at most one evaluation runs at a time.
type Interpreter struct {
	mu        sync.Mutex
	graph     *cache.Graph
	subs      map[Handle]*subscription
	limits    Limits
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	stats     runtime.Stats
	collected uint64
}

// Option defines a functional option for configuring the Interpreter.
type Option func(*Interpreter)

// WithLogger sets a custom structured logger for the interpreter.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) {
		i.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(i *Interpreter) {
		i.hooks = hooks
	}
}

// WithLimits sets the evaluator's stack and tail-call ceilings.
func WithLimits(l Limits) Option {
	return func(i *Interpreter) {
		i.limits = l
	}
}

// New initializes an interpreter with an empty graph.
func New(opts ...Option) *Interpreter {
	i := &Interpreter{
		graph:  cache.New(),
		subs:   make(map[Handle]*subscription),
		limits: runtime.DefaultLimits,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = logging.NewNop()
	}
	return i
}

// Subscribe registers root for evaluation. A nil root evaluates to Pending.
func (i *Interpreter) Subscribe(root domain.Expression) Handle {
	i.mu.Lock()
	defer i.mu.Unlock()

	if root == nil {
		root = domain.Pending{}
	}
	h := Handle(uuid.NewString())
	i.subs[h] = &subscription{handle: h, root: root}
	i.logger.Debug("subscribed", "handle", h, "root", root.Hash())
	return h
}

// Root returns the expression a subscription evaluates.
func (i *Interpreter) Root(h Handle) (domain.Expression, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	s, ok := i.subs[h]
	if !ok {
		return nil, false
	}
	return s.root, true
}

// Subscriptions returns the live handles in no particular order.
func (i *Interpreter) Subscriptions() []Handle {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]Handle, 0, len(i.subs))
	for h := range i.subs {
		out = append(out, h)
	}
	return out
}

// Unsubscribe drops handles and runs a major collection rooted at the remaining
// subscriptions. It returns the effects nothing reaches any more. Unknown handles
// are ignored.
func (i *Interpreter) Unsubscribe(handles ...Handle) []*domain.Effect {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, h := range handles {
		delete(i.subs, h)
	}

	col := i.graph.MajorGC(i.roots())
	for _, s := range i.subs {
		s.candidates = nil
	}
	i.reportCollect(true, col)
	return col.Freed
}

// Invalidate marks the effect's cached resolution dirty so that the next pass
// re-reads it. It reports whether the effect was cached.
func (i *Interpreter) Invalidate(effectID hash.Hash) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	n, ok := i.graph.Get(effectID)
	if !ok {
		return false
	}
	flagged := i.graph.Invalidate(n)
	i.logger.Debug("invalidated", "node", effectID, "dependents", flagged)
	return true
}

// GC runs a minor collection over every subscription, least recently evaluated
// first, and returns the effects nothing reaches any more.
func (i *Interpreter) GC() []*domain.Effect {
	i.mu.Lock()
	defer i.mu.Unlock()

	subs := make([]*subscription, 0, len(i.subs))
	for _, s := range i.subs {
		subs = append(subs, s)
	}
	slices.SortFunc(subs, func(a, b *subscription) int {
		return cmp.Or(cmp.Compare(a.lastVisited, b.lastVisited), cmp.Compare(a.handle, b.handle))
	})

	batches := make([][]cache.Index, 0, len(subs))
	for _, s := range subs {
		batches = append(batches, s.candidates)
		s.candidates = nil
	}

	col := i.graph.MinorGC(i.roots(), batches...)
	i.reportCollect(false, col)
	return col.Freed
}

// Evaluate runs one pass of the subscription against a snapshot of effect
// resolutions. Effects missing from table resume as Pending, so a pass always
// terminates.
func (i *Interpreter) Evaluate(ctx context.Context, h Handle, table domain.EffectTable) (*Evaluation, error) {
	if table == nil {
		table = domain.EffectTable{}
	}
	return i.EvaluateFrom(ctx, h, table)
}

// EvaluateFrom is Evaluate with resolutions looked up from src as effects are
// reached.
func (i *Interpreter) EvaluateFrom(ctx context.Context, h Handle, src ports.EffectSource) (*Evaluation, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	s, ok := i.subs[h]
	if !ok {
		return nil, fmt.Errorf("%s: %w", h, domain.ErrSubscriptionNotFound)
	}

	tick := i.graph.Advance()
	ev := runtime.New(i.graph, s.root,
		runtime.WithLimits(i.limits),
		runtime.WithLogger(i.logger),
		runtime.WithHooks(i.hooks),
		runtime.WithStats(&i.stats),
	)
	defer func() {
		s.candidates = append(s.candidates, i.graph.TakeOrphans()...)
		s.lastVisited = tick
	}()

	var unresolved []*domain.Effect
	seen := make(map[hash.Hash]struct{})
	for {
		sig, err := ev.Step(ctx)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", h, err)
		}
		if sig.Done {
			out, err := domain.OutcomeOf(sig.Result)
			if err != nil {
				return nil, fmt.Errorf("evaluate %s: %w", h, err)
			}
			i.logger.Debug("evaluated", "handle", h, "tick", tick, "status", out.Status, "unresolved", len(unresolved))
			return &Evaluation{Outcome: out, Result: sig.Result, Unresolved: unresolved}, nil
		}

		value, resolved, err := src.Lookup(ctx, sig.Effect.ID)
		if err != nil {
			return nil, fmt.Errorf("lookup effect %s: %w", sig.Effect.ID, err)
		}
		if i.hooks.OnEffectYield != nil {
			i.hooks.OnEffectYield(ctx, &domain.EffectEvent{
				EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventEffectYield, Tick: tick},
				Effect:    sig.Effect,
				Resolved:  resolved,
			})
		}
		if !resolved {
			value = domain.Pending{}
			if _, dup := seen[sig.Effect.ID]; !dup {
				seen[sig.Effect.ID] = struct{}{}
				unresolved = append(unresolved, sig.Effect)
			}
		}
		if err := ev.Resume(value); err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", h, err)
		}
	}
}

// Stats returns a snapshot of the interpreter's counters.
func (i *Interpreter) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()

	return Stats{
		Stats:         i.stats,
		Nodes:         i.graph.Len(),
		Subscriptions: len(i.subs),
		Tick:          i.graph.Tick(),
		Collected:     i.collected,
	}
}

func (i *Interpreter) roots() []hash.Hash {
	roots := make([]hash.Hash, 0, len(i.subs))
	for _, s := range i.subs {
		roots = append(roots, s.root.Hash())
	}
	return roots
}

func (i *Interpreter) reportCollect(major bool, col cache.Collection) {
	i.collected += uint64(col.Collected)
	i.logger.Info("garbage collected", "major", major, "collected", col.Collected, "freed", len(col.Freed))
	if i.hooks.OnCollect != nil {
		i.hooks.OnCollect(context.Background(), &domain.CollectEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventCollect, Tick: i.graph.Tick()},
			Major:     major,
			Collected: col.Collected,
			Freed:     len(col.Freed),
		})
	}
}
