package coroutine

import (
	"errors"
	"fmt"

	"github.com/aretw0/weft/pkg/hash"
)

// ErrNoBody is returned when a Definition has no step function.
var ErrNoBody = errors.New("coroutine definition has no body")

// ErrEmptyInstruction is thrown when a body returns the zero Instruction.
var ErrEmptyInstruction = errors.New("body returned no instruction")

// Exception wraps a thrown value that is not itself an error.
type Exception struct {
	Value any
}

func (e *Exception) Error() string {
	return fmt.Sprintf("uncaught exception: %v", e.Value)
}

// Digest hashes the thrown value structurally. It fails for values that have no
// structural hash.
func (e *Exception) Digest() (hash.Hash, error) {
	return hash.Tuple("exception", e.Value)
}

// PanicError is thrown when a body panics.
type PanicError struct {
	Definition string
	Location   int
	Value      any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("coroutine %s panicked at location %d: %v", e.Definition, e.Location, e.Value)
}

// IllegalLocationError is thrown when a body calls Catch or Finish with a location
// that does not belong to its try table.
type IllegalLocationError struct {
	Op       string
	Location int
}

func (e *IllegalLocationError) Error() string {
	return fmt.Sprintf("illegal %s attempt at location %d", e.Op, e.Location)
}

// InvalidTryEntryError reports a malformed try table.
type InvalidTryEntryError struct {
	Definition string
	Index      int
	Reason     string
}

func (e *InvalidTryEntryError) Error() string {
	return fmt.Sprintf("coroutine %s: try entry %d: %s", e.Definition, e.Index, e.Reason)
}
