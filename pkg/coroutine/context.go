package coroutine

// Method is how a coroutine is being re-entered.
type Method uint8

const (
	MethodNext Method = iota
	MethodThrow
	MethodReturn
)

type op uint8

const (
	opNone op = iota
	opContinue
	opYield
	opStop
)

// Instruction is what a body hands back to the machine after running one segment.
type Instruction struct {
	op     op
	values []any
}

// Context is the view of a State that a body runs against. It is only valid for the
// duration of one machine step.
type Context struct {
	def    *Definition
	state  *State
	method Method
	arg    any
	err    error
}

// Prev is the location the body is being entered at.
func (c *Context) Prev() int { return c.state.Prev }

// Next is the location the body will be entered at after the current segment.
func (c *Context) Next() int { return c.state.Next }

// Sent is the value the coroutine was last resumed with.
func (c *Context) Sent() any { return c.state.Sent }

// Args returns the bound arguments.
func (c *Context) Args() []any { return c.state.Args }

// Arg returns the i-th bound argument, or nil when out of range.
func (c *Context) Arg(i int) any {
	if i < 0 || i >= len(c.state.Args) {
		return nil
	}
	return c.state.Args[i]
}

// Local reads a named local.
func (c *Context) Local(name string) any { return c.state.Locals[name] }

// SetLocal writes a named local.
func (c *Context) SetLocal(name string, v any) { c.state.Locals[name] = v }

// Temp reads the i-th intermediate slot.
func (c *Context) Temp(i int) any {
	if i < 0 || i >= len(c.state.Intermediates) {
		return nil
	}
	return c.state.Intermediates[i]
}

// SetTemp writes the i-th intermediate slot, growing the slots as needed.
func (c *Context) SetTemp(i int, v any) {
	for len(c.state.Intermediates) <= i {
		c.state.Intermediates = append(c.state.Intermediates, nil)
	}
	c.state.Intermediates[i] = v
}

// Yield suspends the coroutine on values; it resumes at next.
func (c *Context) Yield(next int, values ...any) Instruction {
	c.state.Next = next
	return Instruction{op: opYield, values: values}
}

// Jump re-enters the body at loc without suspending.
func (c *Context) Jump(loc int) Instruction {
	c.state.Next = loc
	return Instruction{op: opContinue}
}

// Throw raises v from the body. Errors are thrown as-is; other values are wrapped in
// an Exception.
func (c *Context) Throw(v any) (Instruction, error) {
	if err, ok := v.(error); ok {
		return Instruction{}, err
	}
	return Instruction{}, &Exception{Value: v}
}

// Return completes the coroutine with v, running any enclosing finally blocks first.
func (c *Context) Return(v any) (Instruction, error) {
	return c.Abrupt(CompletionReturn, v)
}

// Break leaves the enclosing loop for target, honoring pending finally blocks.
func (c *Context) Break(target int) (Instruction, error) {
	return c.Abrupt(CompletionBreak, target)
}

// Continue jumps to the loop head at target, honoring pending finally blocks.
func (c *Context) Continue(target int) (Instruction, error) {
	return c.Abrupt(CompletionContinue, target)
}

// Stop marks the coroutine done. An exception recorded on the root region is
// rethrown; otherwise the return value is whatever was last recorded.
func (c *Context) Stop() (Instruction, error) {
	s := c.state
	s.Done = true
	if s.Root.Type == CompletionThrow {
		return Instruction{}, s.Root.Err
	}
	return Instruction{op: opStop}, nil
}

// DispatchException looks for the innermost try entry active at Prev that can handle
// exc, records the throw on it and moves Next to its catch or finally location. When
// no entry applies the throw is recorded on the root region and the coroutine heads
// to End. A non-nil return means the coroutine is already done and exc escapes.
func (c *Context) DispatchException(exc error) error {
	s := c.state
	if s.Done {
		return exc
	}

	entries := s.Statics.TryEntries
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.TryLoc > s.Prev {
			continue
		}
		if e.HasCatch() && s.Prev < e.CatchLoc {
			s.Completions[i] = Completion{Type: CompletionThrow, Err: exc}
			s.Next = e.CatchLoc
			return nil
		}
		if e.HasFinally() && s.Prev < e.FinallyLoc {
			s.Completions[i] = Completion{Type: CompletionThrow, Err: exc}
			s.Next = e.FinallyLoc
			return nil
		}
	}

	s.Root = Completion{Type: CompletionThrow, Err: exc}
	s.Next = End
	return nil
}

// Abrupt performs a non-local exit. If a finally block encloses Prev the exit is
// parked on that entry and control moves to the finally location; otherwise the
// exit completes immediately.
func (c *Context) Abrupt(kind CompletionType, arg any) (Instruction, error) {
	s := c.state
	entries := s.Statics.TryEntries

	fin := -1
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.TryLoc <= s.Prev && e.HasFinally() && s.Prev < e.FinallyLoc {
			fin = i
			break
		}
	}

	if fin >= 0 && (kind == CompletionBreak || kind == CompletionContinue) {
		// A jump that stays inside the protected region does not leave it.
		if target, ok := arg.(int); ok && entries[fin].TryLoc <= target && target <= entries[fin].FinallyLoc {
			fin = -1
		}
	}

	record := Completion{Type: kind, Arg: arg}
	if kind == CompletionThrow {
		if err, ok := arg.(error); ok {
			record = Completion{Type: kind, Err: err}
		} else {
			record = Completion{Type: kind, Err: &Exception{Value: arg}}
		}
	}

	if fin >= 0 {
		s.Completions[fin] = record
		c.method = MethodNext
		s.Next = entries[fin].FinallyLoc
		return Instruction{op: opContinue}, nil
	}
	return c.Complete(record, None)
}

// Complete applies a completion record: throws are rethrown, break and continue
// jump to their target, returns head to End, and normal completions continue at
// afterLoc when one is given.
func (c *Context) Complete(record Completion, afterLoc int) (Instruction, error) {
	s := c.state
	switch record.Type {
	case CompletionThrow:
		return Instruction{}, record.Err
	case CompletionBreak, CompletionContinue:
		if target, ok := record.Arg.(int); ok {
			s.Next = target
		}
	case CompletionReturn:
		s.RVal = record.Arg
		c.arg = record.Arg
		c.method = MethodReturn
		s.Next = End
	case CompletionNormal:
		if afterLoc != None {
			s.Next = afterLoc
		}
	}
	return Instruction{op: opContinue}, nil
}

// Finish ends the finally block at finallyLoc, replaying whatever exit was parked on
// its entry.
func (c *Context) Finish(finallyLoc int) (Instruction, error) {
	s := c.state
	entries := s.Statics.TryEntries
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].FinallyLoc != finallyLoc {
			continue
		}
		record := s.Completions[i]
		s.Completions[i] = Completion{}
		return c.Complete(record, entries[i].AfterLoc)
	}
	return Instruction{}, &IllegalLocationError{Op: "finish", Location: finallyLoc}
}

// Catch claims the exception recorded on the try entry starting at tryLoc. It
// returns nil when the region was not exited by a throw.
func (c *Context) Catch(tryLoc int) (thrown error, err error) {
	s := c.state
	entries := s.Statics.TryEntries
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].TryLoc != tryLoc {
			continue
		}
		record := s.Completions[i]
		if record.Type != CompletionThrow {
			return nil, nil
		}
		s.Completions[i] = Completion{}
		return record.Err, nil
	}
	return nil, &IllegalLocationError{Op: "catch", Location: tryLoc}
}
