package coroutine

import (
	"fmt"

	"github.com/aretw0/weft/pkg/hash"
)

// Body is a coroutine step function. Returning a non-nil error throws it.
type Body func(c *Context) (Instruction, error)

// Definition is a named coroutine: its try table and its step function. Two
// definitions with the same name and try table are interchangeable.
type Definition struct {
	Name       string
	TryEntries []TryEntry
	Body       Body
}

// Hash identifies the definition by name and try table.
func (d *Definition) Hash() hash.Hash {
	return hash.Must([]any{"coroutine-definition", d.Name, d.TryEntries})
}

// Validate checks that the definition has a body and a well-formed try table.
func (d *Definition) Validate() error {
	if d.Body == nil {
		return fmt.Errorf("%s: %w", d.Name, ErrNoBody)
	}
	for i, e := range d.TryEntries {
		if !e.HasCatch() && !e.HasFinally() {
			return &InvalidTryEntryError{Definition: d.Name, Index: i, Reason: "try statement without catch or finally"}
		}
		if e.HasCatch() && e.CatchLoc <= e.TryLoc {
			return &InvalidTryEntryError{Definition: d.Name, Index: i, Reason: "catch location precedes try location"}
		}
		if e.HasFinally() && e.FinallyLoc <= e.TryLoc {
			return &InvalidTryEntryError{Definition: d.Name, Index: i, Reason: "finally location precedes try location"}
		}
	}
	return nil
}

// Step is the outcome of running a coroutine until it pauses. Exactly one of the
// following holds: Yielded is non-empty (suspended), Thrown is set (an uncaught
// exception), or Done is set with Value as the return value.
type Step struct {
	Yielded []any
	Done    bool
	Value   any
	Thrown  error
	State   *State
}

// Suspended reports whether the step paused on yielded values.
func (s Step) Suspended() bool { return !s.Done && s.Thrown == nil }

// Start runs a fresh coroutine from Begin.
func Start(def *Definition, args ...any) (Step, error) {
	if def == nil {
		return Step{}, ErrNoBody
	}
	return invoke(def, NewState(def, args...), MethodNext, nil, nil)
}

// Resume continues a suspended coroutine, delivering value as the result of the
// yield it is paused on.
func Resume(def *Definition, st *State, value any) (Step, error) {
	return invoke(def, st, MethodNext, value, nil)
}

// Throw continues a suspended coroutine by raising err at the yield it is paused on.
func Throw(def *Definition, st *State, err error) (Step, error) {
	return invoke(def, st, MethodThrow, nil, err)
}

// Return continues a suspended coroutine by returning value from the yield it is
// paused on; pending finally blocks still run.
func Return(def *Definition, st *State, value any) (Step, error) {
	return invoke(def, st, MethodReturn, value, nil)
}

func invoke(def *Definition, st *State, method Method, arg any, thrown error) (Step, error) {
	if def == nil || def.Body == nil {
		return Step{}, ErrNoBody
	}
	if st == nil {
		return Step{}, fmt.Errorf("coroutine %s: nil state", def.Name)
	}
	if st.Status == StatusExecuting {
		return Step{}, fmt.Errorf("coroutine %s: already running", def.Name)
	}

	if st.Status == StatusCompleted {
		if method == MethodThrow {
			return Step{Done: true, Thrown: thrown, State: st}, nil
		}
		return Step{Done: true, Value: st.RVal, State: st}, nil
	}

	s := st.Clone()
	c := &Context{def: def, state: s, method: method, arg: arg, err: thrown}

	for {
		switch c.method {
		case MethodNext:
			s.Sent = c.arg
		case MethodThrow:
			if s.Status == StatusSuspendedStart {
				s.Status = StatusCompleted
				s.Done = true
				return Step{Done: true, Thrown: c.err, State: s}, nil
			}
			if escaped := c.DispatchException(c.err); escaped != nil {
				s.Status = StatusCompleted
				return Step{Done: true, Thrown: escaped, State: s}, nil
			}
			// The throw is now recorded on its try entry or the root region.
			c.method = MethodNext
			c.arg = nil
		case MethodReturn:
			if _, err := c.Abrupt(CompletionReturn, c.arg); err != nil {
				c.method = MethodThrow
				c.err = err
				continue
			}
		}

		s.Status = StatusExecuting
		instr, err := c.run()
		if err != nil {
			s.Status = StatusCompleted
			c.method = MethodThrow
			c.err = err
			continue
		}

		if s.Done {
			s.Status = StatusCompleted
		} else {
			s.Status = StatusSuspendedYield
		}

		switch instr.op {
		case opContinue:
			continue
		case opYield:
			return Step{Yielded: instr.values, State: s}, nil
		case opStop:
			return Step{Done: true, Value: s.RVal, State: s}, nil
		default:
			s.Status = StatusCompleted
			c.method = MethodThrow
			c.err = fmt.Errorf("coroutine %s at location %d: %w", def.Name, s.Prev, ErrEmptyInstruction)
		}
	}
}

// run enters the body at Next, or stops directly once End is reached.
func (c *Context) run() (instr Instruction, err error) {
	s := c.state
	if s.Next == End {
		return c.Stop()
	}
	s.Prev = s.Next

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Definition: c.def.Name, Location: s.Prev, Value: r}
		}
	}()
	return c.def.Body(c)
}
