/*
Package weft is an incremental interpreter for expressions with effects.

An expression tree may depend on values produced outside the program (effects).
Evaluating it against a table of the effect results known so far yields a value,
an error, or the set of effects still blocking progress. Everything computed along
the way is cached by structural hash, so the next pass only redoes the work whose
inputs changed.

# Concept

Computations are written as coroutines (see package coroutine): resumable state
machines whose entire state is plain hashable data. A coroutine suspends by
yielding the expressions it needs; the interpreter evaluates them, forks over
several at once, and resumes the coroutine with their values. The only thing that
ever pauses an evaluation is an Effect, which the caller resolves.

# Key Features

  - Incremental: unchanged subtrees are reused; an invalidated effect that resolves
    to the same value leaves its dependents untouched.
  - Deterministic: fork children run in order and join in order.
  - Bounded: explicit fiber stack with configurable stack and tail-call ceilings.
  - Collectable: dropping subscriptions frees the cache and reports the effects
    nobody needs any more.

# Usage

	fetch := domain.NewEffect("fetch", "https://example.com")

	interp := weft.New()
	h := interp.Subscribe(fetch)

	ev, _ := interp.Evaluate(ctx, h, nil)
	// ev.Outcome.Status == domain.OutcomePending, ev.Unresolved == [fetch]

	ev, _ = interp.Evaluate(ctx, h, domain.EffectTable{}.Resolve(fetch, "<html>"))
	// ev.Outcome.Value == "<html>"
*/
package weft
