package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/coroutine"
	"github.com/aretw0/weft/pkg/domain"
)

// Signal is what Step hands back: an effect the caller must resolve, or the root's
// terminal result.
type Signal struct {
	Effect *domain.Effect
	Done   bool
	Result domain.Expression
	Node   *cache.Node
}

// Evaluator walks one root expression over an explicit fiber stack, reusing and
// extending the graph as it goes. An Evaluator serves a single pass: create it
// after advancing the graph's tick, then alternate Step and Resume until Step
// reports Done.
type Evaluator struct {
	graph  *cache.Graph
	stack  []*fiber
	limits Limits
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	stats  *Stats

	ctx     context.Context
	yielded *fiber
	final   *cache.Node
}

// New prepares an evaluation of root against graph.
func New(graph *cache.Graph, root domain.Expression, opts ...Option) *Evaluator {
	e := &Evaluator{
		graph:  graph,
		limits: DefaultLimits,
		logger: defaultLogger(),
		stats:  &Stats{},
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if root == nil {
		root = domain.Pending{}
	}
	e.stack = append(e.stack, newFiber(root, nil))
	return e
}

// Stats returns the counters this evaluator writes to.
func (e *Evaluator) Stats() *Stats { return e.stats }

// Step runs until an effect needs resolving or the root resolves. Errors returned
// here are fatal for the pass; failures raised by coroutines are results.
func (e *Evaluator) Step(ctx context.Context) (Signal, error) {
	if e.final != nil {
		return Signal{Done: true, Result: e.final.Result, Node: e.final}, nil
	}
	if e.yielded != nil {
		return Signal{}, ErrAwaitingResume
	}
	e.ctx = ctx

	for {
		if len(e.stack) == 0 {
			return Signal{}, ErrStackUnderflow
		}
		f := e.stack[len(e.stack)-1]
		e.stack = e.stack[:len(e.stack)-1]

		var err error
		switch f.phase {
		case phaseEnter:
			err = e.enter(f)
		case phaseEval:
			err = e.eval(f)
		case phaseJoin:
			err = e.join(f)
		default:
			err = &InvalidContinuationError{Phase: f.phase.String(), Reason: "fiber popped while waiting on a child"}
		}
		if err != nil {
			e.logger.Error("evaluation aborted", "expr", f.id, "phase", f.phase, "error", err)
			return Signal{}, err
		}

		if e.yielded != nil {
			effect := e.yielded.expr.(*domain.Effect)
			e.stats.Yields++
			return Signal{Effect: effect}, nil
		}
		if e.final != nil {
			if len(e.stack) != 0 {
				return Signal{}, &InvalidContinuationError{Phase: "root", Reason: fmt.Sprintf("root resolved with %d fibers outstanding", len(e.stack))}
			}
			return Signal{Done: true, Result: e.final.Result, Node: e.final}, nil
		}
	}
}

// Resume continues after an effect was yielded; expr is evaluated in the effect's
// place. A nil expr is treated as Pending.
func (e *Evaluator) Resume(expr domain.Expression) error {
	f := e.yielded
	if f == nil {
		return ErrNotSuspended
	}
	e.yielded = nil
	if expr == nil {
		expr = domain.Pending{}
	}
	return e.tail(f, expr)
}

func (e *Evaluator) push(f *fiber) error {
	if len(e.stack) >= e.limits.MaxStackSize {
		return &StackOverflowError{Limit: e.limits.MaxStackSize}
	}
	e.stack = append(e.stack, f)
	return nil
}

// tail parks f and pushes expr as the call whose result becomes f's result.
func (e *Evaluator) tail(f *fiber, expr domain.Expression) error {
	f.phase = phaseTail
	return e.call(f, expr)
}

// call pushes a child of f without changing f's phase.
func (e *Evaluator) call(f *fiber, expr domain.Expression) error {
	return e.spawn(newFiber(expr, f))
}

func (e *Evaluator) spawn(child *fiber) error {
	if child.depth > e.limits.MaxTailCallDepth {
		return &TailCallLimitError{Limit: e.limits.MaxTailCallDepth, Expression: child.id}
	}
	return e.push(child)
}

// enter resolves f from the cache when it can, and evaluates it otherwise.
func (e *Evaluator) enter(f *fiber) error {
	n, ok := e.graph.Get(f.id)
	switch {
	case !ok:
		return e.eval(f)
	case n.LastVisited == e.graph.Tick() && !n.Dirty() && !n.Stale():
		e.stats.Reused++
		return e.unwind(f, n)
	case n.Dirty():
		e.logger.Debug("recomputing dirty node", "node", n.ID)
		return e.eval(f)
	case n.Stale() || !n.Settled():
		if n.IsEffect() || len(n.Deps) == 0 {
			return e.eval(f)
		}
		e.stats.Verified++
		f.phase = phaseVerify
		f.old = n
		f.verified = 0
		f.deps = f.deps[:0]
		return e.verifyNext(f)
	default:
		e.stats.Reused++
		e.graph.VisitAll(n)
		return e.unwind(f, n)
	}
}

// verifyNext pushes the next recorded dependency of f.old, or falls back to a
// recomputation when that dependency no longer exists.
func (e *Evaluator) verifyNext(f *fiber) error {
	dep := e.graph.At(f.old.Deps[f.verified])
	if dep == nil {
		return e.recompute(f)
	}
	child := newFiber(dep.Expression, f)
	if s, ok := f.expr.(*domain.Suspense); ok && f.verified < len(s.Dependencies) {
		// Fork children start their own tail chain, as they did when first evaluated.
		child.depth = 0
	}
	return e.spawn(child)
}

func (e *Evaluator) recompute(f *fiber) error {
	e.logger.Debug("dependency changed, recomputing", "node", f.id)
	f.phase = phaseEval
	f.old = nil
	f.deps = f.deps[:0]
	return e.push(f)
}

// eval computes f's expression from scratch.
func (e *Evaluator) eval(f *fiber) error {
	e.stats.Evaluated++
	switch x := f.expr.(type) {
	case *domain.Result, *domain.Failure, domain.Pending:
		return e.settle(f, f.expr)
	case *domain.Effect:
		f.phase = phaseTail
		e.yielded = f
		return nil
	case *domain.Async:
		e.stats.Steps++
		step, err := coroutine.Start(x.Target, x.Args...)
		if err != nil {
			return fmt.Errorf("start %s: %w", x.Target.Name, err)
		}
		next, err := continuation(x.Target, step)
		if err != nil {
			return err
		}
		return e.tail(f, next)
	case *domain.Suspense:
		if len(x.Dependencies) == 0 {
			e.stats.Steps++
			step, err := coroutine.Resume(x.Parent, x.State, nil)
			if err != nil {
				return fmt.Errorf("resume %s: %w", x.Parent.Name, err)
			}
			next, err := continuation(x.Parent, step)
			if err != nil {
				return err
			}
			return e.tail(f, next)
		}
		return e.fork(f, x)
	case *domain.Fallback:
		f.phase = phaseAttempt
		return e.call(f, x.Attempt)
	default:
		return fmt.Errorf("%T: %w", f.expr, domain.ErrUnknownExpression)
	}
}

// fork pushes f back as a fork point, then one fork root per dependency so that
// the first dependency runs first.
func (e *Evaluator) fork(f *fiber, s *domain.Suspense) error {
	n := len(s.Dependencies)
	f.phase = phaseJoin
	f.results = make([]domain.Expression, n)
	f.nodes = make([]cache.Index, n)
	for i := range f.nodes {
		f.nodes[i] = cache.NoIndex
	}
	if err := e.push(f); err != nil {
		return err
	}
	for i := n - 1; i >= 0; i-- {
		if err := e.push(newForkRoot(s.Dependencies[i], f, i)); err != nil {
			return err
		}
	}
	return nil
}

// join runs once every child of the fork point f has resolved.
func (e *Evaluator) join(f *fiber) error {
	s, ok := f.expr.(*domain.Suspense)
	if !ok {
		return &InvalidContinuationError{Phase: "join", Reason: fmt.Sprintf("fork point over %s", f.expr.Kind())}
	}
	for i, idx := range f.nodes {
		if idx == cache.NoIndex || f.results[i] == nil {
			return &InvalidContinuationError{Phase: "join", Reason: fmt.Sprintf("child %d of %d never resolved", i, len(f.nodes))}
		}
	}
	f.deps = append(f.deps[:0], f.nodes...)

	var step coroutine.Step
	var err error
	failure, pending := firstFailure(f.results)
	switch {
	case failure != nil:
		e.stats.Steps++
		step, err = coroutine.Throw(s.Parent, s.State, failure.Err)
	case pending:
		return e.settle(f, domain.Pending{})
	default:
		e.stats.Steps++
		step, err = coroutine.Resume(s.Parent, s.State, joinValue(f.results))
	}
	if err != nil {
		return fmt.Errorf("resume %s: %w", s.Parent.Name, err)
	}
	next, err := continuation(s.Parent, step)
	if err != nil {
		return err
	}
	return e.tail(f, next)
}

// firstFailure scans children in dependency order. The first failure wins over
// any pending sibling.
func firstFailure(results []domain.Expression) (*domain.Failure, bool) {
	pending := false
	for _, r := range results {
		switch x := r.(type) {
		case *domain.Failure:
			return x, false
		case domain.Pending:
			pending = true
		}
	}
	return nil, pending
}

// joinValue is what a coroutine resumes with: the single child's value, or every
// child value in dependency order.
func joinValue(results []domain.Expression) any {
	values := make([]any, len(results))
	for i, r := range results {
		if res, ok := r.(*domain.Result); ok {
			values[i] = res.Value
		}
	}
	if len(values) == 1 {
		return values[0]
	}
	return values
}

// continuation turns one coroutine step into the expression evaluated next.
func continuation(def *coroutine.Definition, step coroutine.Step) (domain.Expression, error) {
	switch {
	case step.Thrown != nil:
		f, err := domain.NewFailure(step.Thrown)
		if err != nil {
			return nil, fmt.Errorf("%s threw: %w", def.Name, err)
		}
		return f, nil
	case step.Done:
		return lift(step.Value)
	default:
		deps := make([]domain.Expression, len(step.Yielded))
		for i, v := range step.Yielded {
			d, err := lift(v)
			if err != nil {
				return nil, fmt.Errorf("%s yielded: %w", def.Name, err)
			}
			deps[i] = d
		}
		s, err := domain.NewSuspense(deps, def, step.State)
		if err != nil {
			return nil, fmt.Errorf("%s suspended: %w", def.Name, err)
		}
		return s, nil
	}
}

// lift treats expressions as themselves and any other value as a Result.
func lift(v any) (domain.Expression, error) {
	if x, ok := v.(domain.Expression); ok && x != nil {
		return x, nil
	}
	return domain.ResultOf(v)
}

// settle commits f's result and unwinds.
func (e *Evaluator) settle(f *fiber, result domain.Expression) error {
	return e.unwind(f, e.commit(f, result))
}

// commit stores result for f. An existing node with a hash-equal result is
// revalidated in place; otherwise a new node supersedes it.
func (e *Evaluator) commit(f *fiber, result domain.Expression) *cache.Node {
	if n, ok := e.graph.Get(f.id); ok && n.Result.Hash() == result.Hash() {
		e.graph.Revalidate(n, f.deps)
		e.stats.Revalidated++
		if e.hooks.OnNodeRevalidated != nil {
			e.hooks.OnNodeRevalidated(e.ctx, e.nodeEvent(domain.EventNodeRevalidated, n, false))
		}
		return n
	}
	n, old := e.graph.Create(f.expr, result, f.deps)
	e.stats.Created++
	if old != nil {
		e.stats.Superseded++
	}
	if e.hooks.OnNodeCreated != nil {
		e.hooks.OnNodeCreated(e.ctx, e.nodeEvent(domain.EventNodeCreated, n, old != nil))
	}
	return n
}

func (e *Evaluator) nodeEvent(typ domain.EventType, n *cache.Node, superseded bool) *domain.NodeEvent {
	return &domain.NodeEvent{
		EventBase:  domain.EventBase{Timestamp: time.Now(), Type: typ, Tick: e.graph.Tick()},
		NodeID:     n.ID,
		Kind:       n.Expression.Kind(),
		Superseded: superseded,
	}
}

// unwind hands a resolved node up through parent links until a fork point takes
// it, an ancestor needs more work, or the root resolves.
func (e *Evaluator) unwind(f *fiber, n *cache.Node) error {
	for {
		p := f.parent
		if p == nil {
			e.final = n
			return nil
		}
		if f.forkRoot {
			if p.phase != phaseJoin || f.index >= len(p.nodes) {
				return &InvalidContinuationError{Phase: p.phase.String(), Reason: fmt.Sprintf("fork child %d has no slot", f.index)}
			}
			p.results[f.index] = n.Result
			p.nodes[f.index] = n.Index
			return nil
		}

		next, err := e.receive(p, n)
		if err != nil || next == nil {
			return err
		}
		f, n = p, next
	}
}

// receive delivers a child's node to p. It returns p's own node when p resolved,
// or nil when p pushed more work.
func (e *Evaluator) receive(p *fiber, n *cache.Node) (*cache.Node, error) {
	switch p.phase {
	case phaseTail, phaseFallback:
		p.deps = append(p.deps, n.Index)
		return e.commit(p, n.Result), nil

	case phaseAttempt:
		p.deps = append(p.deps, n.Index)
		if _, pending := n.Result.(domain.Pending); pending {
			p.phase = phaseFallback
			return nil, e.call(p, p.expr.(*domain.Fallback).Fallback)
		}
		return e.commit(p, n.Result), nil

	case phaseVerify:
		old := e.graph.At(p.old.Deps[p.verified])
		if old == nil || old.Result.Hash() != n.Result.Hash() {
			return nil, e.recompute(p)
		}
		p.deps = append(p.deps, n.Index)
		p.verified++
		if p.verified < len(p.old.Deps) {
			return nil, e.verifyNext(p)
		}
		node := p.old
		e.graph.Revalidate(node, p.deps)
		e.stats.Revalidated++
		if e.hooks.OnNodeRevalidated != nil {
			e.hooks.OnNodeRevalidated(e.ctx, e.nodeEvent(domain.EventNodeRevalidated, node, false))
		}
		return node, nil
	}
	return nil, &InvalidContinuationError{Phase: p.phase.String(), Reason: "parent is not waiting on a child"}
}
