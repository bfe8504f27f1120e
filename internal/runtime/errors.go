package runtime

import (
	"errors"
	"fmt"

	"github.com/aretw0/weft/pkg/hash"
)

// ErrStackUnderflow is returned when the evaluator pops an empty fiber stack before
// the root has resolved.
var ErrStackUnderflow = errors.New("fiber stack underflow")

// ErrNotSuspended is returned by Resume when no effect is awaiting a value.
var ErrNotSuspended = errors.New("evaluator is not suspended on an effect")

// ErrAwaitingResume is returned by Step while an effect is awaiting a value.
var ErrAwaitingResume = errors.New("evaluator is awaiting an effect resolution")

// StackOverflowError is returned when more fibers are outstanding than allowed.
type StackOverflowError struct {
	Limit int
}

func (e *StackOverflowError) Error() string {
	return fmt.Sprintf("fiber stack overflow: more than %d outstanding fibers", e.Limit)
}

// TailCallLimitError is returned when a chain of tail calls grows past the limit.
type TailCallLimitError struct {
	Limit      int
	Expression hash.Hash
}

func (e *TailCallLimitError) Error() string {
	return fmt.Sprintf("tail call depth exceeded %d at expression %s", e.Limit, e.Expression)
}

// InvalidContinuationError reports fork/join bookkeeping that does not add up.
type InvalidContinuationError struct {
	Phase  string
	Reason string
}

func (e *InvalidContinuationError) Error() string {
	return fmt.Sprintf("invalid continuation stack frame (%s): %s", e.Phase, e.Reason)
}

// IsFatal reports whether err aborts a whole evaluation, as opposed to a failure
// that was captured as a result.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var (
		so *StackOverflowError
		tc *TailCallLimitError
		ic *InvalidContinuationError
		nh *hash.NonHashableError
	)
	return errors.Is(err, ErrStackUnderflow) ||
		errors.As(err, &so) ||
		errors.As(err, &tc) ||
		errors.As(err, &ic) ||
		errors.As(err, &nh)
}
