/*
Package domain contains the expression model evaluated by the weft runtime.

Every value the evaluator touches is an Expression: a closed set of variants, each
carrying a structural hash derived from its fields. Two expressions with the same
hash are interchangeable, which is what lets the cache reuse work across passes.
This package is kept pure: no I/O and no knowledge of the cache or evaluator.

# Variants

  - Result: a fully evaluated value.
  - Failure: a fully evaluated error.
  - Effect: a request for a value produced outside the runtime, identified by the
    hash of its type and payload.
  - Async: a lazy invocation of a coroutine definition with bound arguments.
  - Suspense: children that must resolve before a suspended coroutine resumes.
  - Pending: the sentinel for "blocked, no value yet".
  - Fallback: an attempt, and what to continue with while the attempt is Pending.
*/
package domain
