package registry

import (
	"fmt"
	"strings"

	"github.com/aretw0/weft/pkg/coroutine"
)

// Collect waits on every argument and returns their values as a list, in
// argument order. The first failing argument fails the call.
var Collect = &coroutine.Definition{
	Name: "collect",
	Body: func(c *coroutine.Context) (coroutine.Instruction, error) {
		switch c.Prev() {
		case 0:
			if len(c.Args()) == 0 {
				return c.Return([]any{})
			}
			return c.Yield(1, c.Args()...), nil
		case 1:
			return c.Return(joined(c))
		}
		return c.Stop()
	},
}

// First tries its arguments in order and returns the value of the first one
// that succeeds. When every argument fails, the last failure is rethrown.
var First = &coroutine.Definition{
	Name: "first",
	TryEntries: []coroutine.TryEntry{
		{TryLoc: 1, CatchLoc: 2, FinallyLoc: coroutine.None, AfterLoc: 3},
	},
	Body: func(c *coroutine.Context) (coroutine.Instruction, error) {
		switch c.Prev() {
		case 0:
			if len(c.Args()) == 0 {
				return c.Throw("first: no alternatives")
			}
			c.SetLocal("i", 0)
			return c.Jump(1), nil
		case 1:
			return c.Yield(3, c.Arg(c.Local("i").(int))), nil
		case 2:
			thrown, err := c.Catch(1)
			if err != nil {
				return coroutine.Instruction{}, err
			}
			i := c.Local("i").(int) + 1
			if i >= len(c.Args()) {
				return c.Throw(thrown)
			}
			c.SetLocal("i", i)
			return c.Jump(1), nil
		case 3:
			return c.Return(c.Sent())
		}
		return c.Stop()
	},
}

// Concat waits on every argument and joins their values as text.
var Concat = &coroutine.Definition{
	Name: "concat",
	Body: func(c *coroutine.Context) (coroutine.Instruction, error) {
		switch c.Prev() {
		case 0:
			if len(c.Args()) == 0 {
				return c.Return("")
			}
			return c.Yield(1, c.Args()...), nil
		case 1:
			var b strings.Builder
			for _, v := range joined(c) {
				fmt.Fprint(&b, v)
			}
			return c.Return(b.String())
		}
		return c.Stop()
	},
}

// Builtins returns the definitions every document can call.
func Builtins() []*coroutine.Definition {
	return []*coroutine.Definition{Collect, First, Concat}
}

// joined normalizes the value a multi-dependency yield resumed with: one
// dependency resumes with its value, several with an ordered list.
func joined(c *coroutine.Context) []any {
	if len(c.Args()) == 1 {
		return []any{c.Sent()}
	}
	vs, _ := c.Sent().([]any)
	return vs
}
