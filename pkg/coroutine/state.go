package coroutine

import (
	"maps"
	"math"
	"slices"

	"github.com/aretw0/weft/pkg/hash"
)

// Well-known program-counter locations.
const (
	// Begin is where every coroutine starts.
	Begin = 0
	// End completes the coroutine without entering its body.
	End = math.MaxInt32
	// None marks an absent catch, finally or after location in a TryEntry.
	None = -1
)

// Status is the lifecycle position of a coroutine.
type Status uint8

const (
	StatusSuspendedStart Status = iota
	StatusSuspendedYield
	StatusExecuting
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusSuspendedStart:
		return "suspended_start"
	case StatusSuspendedYield:
		return "suspended_yield"
	case StatusExecuting:
		return "executing"
	case StatusCompleted:
		return "completed"
	}
	return "unknown"
}

// TryEntry describes one try region of a body. TryLoc is where the region starts;
// CatchLoc, FinallyLoc and AfterLoc are None when absent.
type TryEntry struct {
	TryLoc     int
	CatchLoc   int
	FinallyLoc int
	AfterLoc   int
}

// HasCatch reports whether the region has a catch clause.
func (e TryEntry) HasCatch() bool { return e.CatchLoc != None }

// HasFinally reports whether the region has a finally clause.
func (e TryEntry) HasFinally() bool { return e.FinallyLoc != None }

// CompletionType is how a region of code was exited.
type CompletionType uint8

const (
	CompletionNormal CompletionType = iota
	CompletionThrow
	CompletionReturn
	CompletionBreak
	CompletionContinue
)

func (t CompletionType) String() string {
	switch t {
	case CompletionNormal:
		return "normal"
	case CompletionThrow:
		return "throw"
	case CompletionReturn:
		return "return"
	case CompletionBreak:
		return "break"
	case CompletionContinue:
		return "continue"
	}
	return "unknown"
}

// Completion records a pending non-local exit. Arg carries the return value or the
// break/continue target location; Err carries the thrown error.
type Completion struct {
	Type CompletionType
	Arg  any
	Err  error
}

// Statics is the static part of a coroutine's state: its try table.
type Statics struct {
	TryEntries []TryEntry
}

// State is the entire resumable state of one suspended computation.
type State struct {
	Args          []any
	Locals        map[string]any
	Intermediates []any
	Statics       Statics

	// Completions holds one record per try entry; Root is the record of the
	// implicit outermost region.
	Completions []Completion
	Root        Completion

	Prev int
	Next int

	Sent   any
	RVal   any
	Done   bool
	Status Status
}

// NewState returns a fresh state for def positioned at Begin.
func NewState(def *Definition, args ...any) *State {
	entries := slices.Clone(def.TryEntries)
	return &State{
		Args:        slices.Clone(args),
		Locals:      make(map[string]any),
		Statics:     Statics{TryEntries: entries},
		Completions: make([]Completion, len(entries)),
		Prev:        Begin,
		Next:        Begin,
		Status:      StatusSuspendedStart,
	}
}

// Clone copies the state so the copy can be stepped without disturbing s.
func (s *State) Clone() *State {
	next := *s
	next.Args = slices.Clone(s.Args)
	next.Locals = maps.Clone(s.Locals)
	if next.Locals == nil {
		next.Locals = make(map[string]any)
	}
	next.Intermediates = slices.Clone(s.Intermediates)
	next.Statics.TryEntries = slices.Clone(s.Statics.TryEntries)
	next.Completions = slices.Clone(s.Completions)
	return &next
}

// stateFields has State's layout without its methods.
type stateFields State

// Digest hashes every field of the state. It fails when a local, argument or
// intermediate holds a value without a structural hash.
func (s *State) Digest() (hash.Hash, error) {
	return hash.Tuple("coroutine-state", (*stateFields)(s))
}
