package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/coroutine"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gather yields its arguments and returns whatever it is resumed with.
func gather(name string, steps *int) *coroutine.Definition {
	return &coroutine.Definition{
		Name: name,
		Body: func(c *coroutine.Context) (coroutine.Instruction, error) {
			*steps++
			switch c.Prev() {
			case 0:
				return c.Yield(1, c.Args()...), nil
			case 1:
				return c.Return(c.Sent())
			}
			return c.Stop()
		},
	}
}

// guard yields its arguments and turns a thrown error into a value.
var guard = &coroutine.Definition{
	Name: "guard",
	TryEntries: []coroutine.TryEntry{
		{TryLoc: 0, CatchLoc: 2, FinallyLoc: coroutine.None, AfterLoc: 3},
	},
	Body: func(c *coroutine.Context) (coroutine.Instruction, error) {
		switch c.Prev() {
		case 0:
			return c.Yield(1, c.Args()...), nil
		case 1:
			c.SetLocal("v", c.Sent())
			return c.Jump(3), nil
		case 2:
			thrown, err := c.Catch(0)
			if err != nil {
				return coroutine.Instruction{}, err
			}
			c.SetLocal("v", "caught: "+thrown.Error())
			return c.Jump(3), nil
		case 3:
			return c.Return(c.Local("v"))
		}
		return c.Stop()
	},
}

type pass struct {
	result     domain.Expression
	node       *cache.Node
	unresolved []*domain.Effect
}

func evaluate(t *testing.T, g *cache.Graph, root domain.Expression, table domain.EffectTable, opts ...runtime.Option) pass {
	t.Helper()
	g.Advance()
	ev := runtime.New(g, root, opts...)
	var out pass
	for {
		sig, err := ev.Step(context.Background())
		require.NoError(t, err)
		if sig.Done {
			out.result, out.node = sig.Result, sig.Node
			return out
		}
		if v, ok := table[sig.Effect.ID]; ok {
			require.NoError(t, ev.Resume(v))
			continue
		}
		out.unresolved = append(out.unresolved, sig.Effect)
		require.NoError(t, ev.Resume(nil))
	}
}

func evaluateErr(g *cache.Graph, root domain.Expression, opts ...runtime.Option) error {
	g.Advance()
	ev := runtime.New(g, root, opts...)
	for {
		sig, err := ev.Step(context.Background())
		if err != nil {
			return err
		}
		if sig.Done {
			return nil
		}
		if err := ev.Resume(nil); err != nil {
			return err
		}
	}
}

func invalidate(t *testing.T, g *cache.Graph, e *domain.Effect) {
	t.Helper()
	n, ok := g.Get(e.ID)
	require.True(t, ok)
	g.Invalidate(n)
}

func value(t *testing.T, expr domain.Expression) any {
	t.Helper()
	r, ok := expr.(*domain.Result)
	require.True(t, ok, "expected a result, got %v", expr)
	return r.Value
}

func TestEvaluate_Result(t *testing.T) {
	g := cache.New()
	out := evaluate(t, g, domain.NewResult("foo"), nil)
	assert.Equal(t, "foo", value(t, out.result))
	assert.Empty(t, out.unresolved)
}

func TestEvaluate_EffectPendingThenResolved(t *testing.T) {
	g := cache.New()
	e1 := domain.NewEffect("fetch", "a")

	out := evaluate(t, g, e1, domain.EffectTable{})
	assert.Equal(t, domain.Pending{}, out.result)
	require.Len(t, out.unresolved, 1)
	assert.Equal(t, e1.ID, out.unresolved[0].ID)

	out = evaluate(t, g, e1, domain.EffectTable{}.Resolve(e1, "foo"))
	assert.Equal(t, "foo", value(t, out.result))
	assert.Empty(t, out.unresolved)
}

func TestEvaluate_ForkJoin(t *testing.T) {
	g := cache.New()
	steps := 0
	e1 := domain.NewEffect("fetch", 1)
	e2 := domain.NewEffect("fetch", 2)
	root := domain.NewAsync(gather("pair", &steps), e1, e2)

	out := evaluate(t, g, root, domain.EffectTable{}.Resolve(e1, "a"))
	assert.Equal(t, domain.Pending{}, out.result)
	require.Len(t, out.unresolved, 1)
	assert.Equal(t, e2.ID, out.unresolved[0].ID)

	out = evaluate(t, g, root, domain.EffectTable{}.Resolve(e1, "a").Resolve(e2, "b"))
	assert.Equal(t, []any{"a", "b"}, value(t, out.result))
	assert.Empty(t, out.unresolved)
}

func TestEvaluate_JoinKeepsDependencyOrder(t *testing.T) {
	g := cache.New()
	steps := 0
	deps := []any{domain.NewEffect("n", 3), domain.NewEffect("n", 1), domain.NewEffect("n", 2)}
	table := domain.EffectTable{}
	for i, d := range deps {
		table.Resolve(d.(*domain.Effect), i)
	}

	out := evaluate(t, g, domain.NewAsync(gather("ordered", &steps), deps...), table)
	assert.Equal(t, []any{0, 1, 2}, value(t, out.result))
}

func TestEvaluate_SingleDependencyResumesWithItsValue(t *testing.T) {
	g := cache.New()
	steps := 0
	e := domain.NewEffect("fetch", nil)

	out := evaluate(t, g, domain.NewAsync(gather("single", &steps), e), domain.EffectTable{}.Resolve(e, "only"))
	assert.Equal(t, "only", value(t, out.result))
}

func TestEvaluate_SiblingErrorWins(t *testing.T) {
	g := cache.New()
	steps := 0
	e1 := domain.NewEffect("fetch", 1)
	e2 := domain.NewEffect("fetch", 2)
	boom := errors.New("boom")

	out := evaluate(t, g, domain.NewAsync(gather("pair", &steps), e1, e2),
		domain.EffectTable{}.Reject(e1, boom).Resolve(e2, 1))
	f, ok := out.result.(*domain.Failure)
	require.True(t, ok)
	assert.ErrorIs(t, f.Err, boom)
}

func TestEvaluate_FirstErrorInDependencyOrder(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	e1 := domain.NewEffect("fetch", 1)
	e2 := domain.NewEffect("fetch", 2)
	e3 := domain.NewEffect("fetch", 3)

	for range 3 {
		g := cache.New()
		steps := 0
		out := evaluate(t, g, domain.NewAsync(gather("triple", &steps), e1, e2, e3),
			domain.EffectTable{}.Reject(e2, first).Reject(e3, second))
		f, ok := out.result.(*domain.Failure)
		require.True(t, ok)
		assert.ErrorIs(t, f.Err, first)
	}
}

func TestEvaluate_ErrorBeatsPending(t *testing.T) {
	g := cache.New()
	steps := 0
	e1 := domain.NewEffect("fetch", 1)
	e2 := domain.NewEffect("fetch", 2)
	boom := errors.New("boom")

	out := evaluate(t, g, domain.NewAsync(gather("pair", &steps), e1, e2), domain.EffectTable{}.Reject(e2, boom))
	f, ok := out.result.(*domain.Failure)
	require.True(t, ok)
	assert.ErrorIs(t, f.Err, boom)
}

func TestEvaluate_ChildErrorCanBeCaught(t *testing.T) {
	g := cache.New()
	e := domain.NewEffect("fetch", nil)

	out := evaluate(t, g, domain.NewAsync(guard, e), domain.EffectTable{}.Reject(e, errors.New("nope")))
	assert.Equal(t, "caught: nope", value(t, out.result))

	g = cache.New()
	out = evaluate(t, g, domain.NewAsync(guard, e), domain.EffectTable{}.Resolve(e, "fine"))
	assert.Equal(t, "fine", value(t, out.result))
}

func TestEvaluate_EmptySuspenseResumesImmediately(t *testing.T) {
	def := &coroutine.Definition{
		Name: "tick",
		Body: func(c *coroutine.Context) (coroutine.Instruction, error) {
			switch c.Prev() {
			case 0:
				return c.Yield(1), nil
			case 1:
				return c.Return("ticked")
			}
			return c.Stop()
		},
	}
	out := evaluate(t, cache.New(), domain.NewAsync(def), nil)
	assert.Equal(t, "ticked", value(t, out.result))
}

func TestEvaluate_ReturnedExpressionIsTailCalled(t *testing.T) {
	steps := 0
	inner := gather("inner", &steps)
	e := domain.NewEffect("fetch", nil)
	outer := &coroutine.Definition{
		Name: "outer",
		Body: func(c *coroutine.Context) (coroutine.Instruction, error) {
			return c.Return(domain.NewAsync(inner, e))
		},
	}
	out := evaluate(t, cache.New(), domain.NewAsync(outer), domain.EffectTable{}.Resolve(e, 42))
	assert.Equal(t, 42, value(t, out.result))
}

func TestEvaluate_SameInputReusesNode(t *testing.T) {
	g := cache.New()
	steps := 0
	e := domain.NewEffect("fetch", nil)
	root := domain.NewAsync(gather("once", &steps), e)
	table := domain.EffectTable{}.Resolve(e, "v")

	first := evaluate(t, g, root, table)
	nodes, ran := g.Len(), steps

	second := evaluate(t, g, root, table)
	assert.Same(t, first.node, second.node)
	assert.Equal(t, first.result.Hash(), second.result.Hash())
	assert.Equal(t, nodes, g.Len())
	assert.Equal(t, ran, steps)
	assert.Equal(t, g.Tick(), second.node.LastVisited)
}

func TestEvaluate_InvalidateHashEqualSkipsRecomputation(t *testing.T) {
	g := cache.New()
	steps := 0
	stats := &runtime.Stats{}
	e1 := domain.NewEffect("fetch", 1)
	root := domain.NewAsync(gather("stable", &steps), e1)
	table := domain.EffectTable{}.Resolve(e1, "foo")

	first := evaluate(t, g, root, table, runtime.WithStats(stats))
	ran, nodes, created := steps, g.Len(), stats.Created

	invalidate(t, g, e1)
	assert.True(t, first.node.Stale())

	second := evaluate(t, g, root, table, runtime.WithStats(stats))
	assert.Equal(t, ran, steps, "dependents must not be recomputed")
	assert.Same(t, first.node, second.node)
	assert.Equal(t, nodes, g.Len())
	assert.Equal(t, created, stats.Created)
	assert.False(t, second.node.Stale())
	assert.False(t, second.node.Dirty())
}

func TestEvaluate_ReverifyNestedForksWithinTailLimit(t *testing.T) {
	g := cache.New()
	steps := 0
	level := gather("level", &steps)
	e1 := domain.NewEffect("fetch", 1)
	var root domain.Expression = e1
	for range 6 {
		root = domain.NewAsync(level, root)
	}
	table := domain.EffectTable{}.Resolve(e1, "v")
	limits := runtime.WithLimits(runtime.Limits{MaxTailCallDepth: 8})

	first := evaluate(t, g, root, table, limits)
	assert.Equal(t, "v", value(t, first.result))
	ran := steps

	invalidate(t, g, e1)
	g.Advance()
	ev := runtime.New(g, root, limits)
	for {
		sig, err := ev.Step(context.Background())
		require.NoError(t, err, "re-verifying a settled tree must not count toward the tail call limit")
		if sig.Done {
			assert.Equal(t, "v", value(t, sig.Result))
			assert.Same(t, first.node, sig.Node)
			break
		}
		require.NoError(t, ev.Resume(table[sig.Effect.ID]))
	}
	assert.Equal(t, ran, steps)
}

func TestEvaluate_InvalidateHashDifferentSupersedes(t *testing.T) {
	g := cache.New()
	stepsA, stepsB := 0, 0
	e1 := domain.NewEffect("fetch", 1)
	e2 := domain.NewEffect("fetch", 2)
	rootA := domain.NewAsync(gather("a", &stepsA), e1)
	rootB := domain.NewAsync(gather("b", &stepsB), e2)

	table := domain.EffectTable{}.Resolve(e1, "foo").Resolve(e2, "other")
	a1 := evaluate(t, g, rootA, table)
	b1 := evaluate(t, g, rootB, table)
	ranB := stepsB

	invalidate(t, g, e1)
	assert.False(t, b1.node.Stale(), "unrelated subscription is not flagged")

	table = domain.EffectTable{}.Resolve(e1, "bar").Resolve(e2, "other")
	a2 := evaluate(t, g, rootA, table)
	assert.Equal(t, "bar", value(t, a2.result))
	assert.NotSame(t, a1.node, a2.node)

	b2 := evaluate(t, g, rootB, table)
	assert.Same(t, b1.node, b2.node)
	assert.Equal(t, ranB, stepsB)
}

func TestEvaluate_FallbackTracksAttempt(t *testing.T) {
	g := cache.New()
	attempt := domain.NewEffect("slow", nil)
	root := domain.NewFallback(attempt, domain.NewResult("default"))

	out := evaluate(t, g, root, domain.EffectTable{})
	assert.Equal(t, "default", value(t, out.result))
	require.Len(t, out.unresolved, 1)
	assert.Equal(t, attempt.ID, out.unresolved[0].ID)

	attemptNode, ok := g.Get(attempt.ID)
	require.True(t, ok)
	assert.Contains(t, out.node.Deps, attemptNode.Index)

	out = evaluate(t, g, root, domain.EffectTable{})
	assert.Equal(t, "default", value(t, out.result))

	out = evaluate(t, g, root, domain.EffectTable{}.Resolve(attempt, "fast"))
	assert.Equal(t, "fast", value(t, out.result))
	assert.Empty(t, out.unresolved)
}

func TestEvaluate_CoroutineFailureIsAResult(t *testing.T) {
	def := &coroutine.Definition{
		Name: "fails",
		Body: func(c *coroutine.Context) (coroutine.Instruction, error) {
			return c.Throw("bad input")
		},
	}
	out := evaluate(t, cache.New(), domain.NewAsync(def), nil)
	f, ok := out.result.(*domain.Failure)
	require.True(t, ok)
	var exc *coroutine.Exception
	require.ErrorAs(t, f.Err, &exc)
	assert.Equal(t, "bad input", exc.Value)
}

func TestEvaluate_TailCallLimit(t *testing.T) {
	var loop *coroutine.Definition
	loop = &coroutine.Definition{
		Name: "loop",
		Body: func(c *coroutine.Context) (coroutine.Instruction, error) {
			n := c.Arg(0).(int)
			return c.Return(domain.NewAsync(loop, n+1))
		},
	}
	err := evaluateErr(cache.New(), domain.NewAsync(loop, 0), runtime.WithLimits(runtime.Limits{MaxTailCallDepth: 50}))
	var tc *runtime.TailCallLimitError
	require.ErrorAs(t, err, &tc)
	assert.Equal(t, 50, tc.Limit)
	assert.True(t, runtime.IsFatal(err))
}

func TestEvaluate_StackOverflow(t *testing.T) {
	steps := 0
	deps := make([]any, 20)
	for i := range deps {
		deps[i] = domain.NewEffect("wide", i)
	}
	err := evaluateErr(cache.New(), domain.NewAsync(gather("wide", &steps), deps...),
		runtime.WithLimits(runtime.Limits{MaxStackSize: 8}))
	var so *runtime.StackOverflowError
	require.ErrorAs(t, err, &so)
	assert.True(t, runtime.IsFatal(err))
}

func TestEvaluate_NonHashableYieldIsFatal(t *testing.T) {
	def := &coroutine.Definition{
		Name: "leaky",
		Body: func(c *coroutine.Context) (coroutine.Instruction, error) {
			return c.Yield(1, func() {}), nil
		},
	}
	err := evaluateErr(cache.New(), domain.NewAsync(def))
	var nh *hash.NonHashableError
	require.ErrorAs(t, err, &nh)
	assert.True(t, runtime.IsFatal(err))
}

func TestEvaluate_NonHashableThrowIsFatal(t *testing.T) {
	def := &coroutine.Definition{
		Name: "throws-channel",
		Body: func(c *coroutine.Context) (coroutine.Instruction, error) {
			return c.Throw(make(chan int))
		},
	}
	err := evaluateErr(cache.New(), domain.NewAsync(def))
	require.Error(t, err)
	var nh *hash.NonHashableError
	assert.ErrorAs(t, err, &nh)
	assert.True(t, runtime.IsFatal(err))
}

func TestEvaluator_ResumeProtocol(t *testing.T) {
	g := cache.New()
	g.Advance()
	e := domain.NewEffect("fetch", nil)
	ev := runtime.New(g, e)

	assert.ErrorIs(t, ev.Resume(nil), runtime.ErrNotSuspended)

	sig, err := ev.Step(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sig.Effect)

	_, err = ev.Step(context.Background())
	assert.ErrorIs(t, err, runtime.ErrAwaitingResume)

	require.NoError(t, ev.Resume(domain.NewResult(1)))
	sig, err = ev.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, sig.Done)
	assert.Equal(t, uint64(1), ev.Stats().Yields)

	again, err := ev.Step(context.Background())
	require.NoError(t, err)
	assert.Same(t, sig.Node, again.Node)
}

func TestEvaluate_HooksFire(t *testing.T) {
	created, revalidated := 0, 0
	hooks := domain.LifecycleHooks{
		OnNodeCreated:     func(context.Context, *domain.NodeEvent) { created++ },
		OnNodeRevalidated: func(context.Context, *domain.NodeEvent) { revalidated++ },
	}
	g := cache.New()
	e := domain.NewEffect("fetch", nil)
	table := domain.EffectTable{}.Resolve(e, 1)

	evaluate(t, g, e, table, runtime.WithHooks(hooks))
	assert.Equal(t, 2, created, "the effect and the value it resolved to")
	assert.Zero(t, revalidated)

	invalidate(t, g, e)
	evaluate(t, g, e, table, runtime.WithHooks(hooks))
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, revalidated)
}
