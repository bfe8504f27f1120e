/*
Package coroutine reifies a suspendable computation as plain, hashable data.

A Definition pairs a name and a static try table with a Body: a step function that is
called with a Context positioned at a program-counter location and returns an
Instruction. Bodies are written as a switch over Context.Prev, one case per resumable
location:

	body := func(c *coroutine.Context) (coroutine.Instruction, error) {
		switch c.Prev() {
		case 0:
			return c.Yield(1, fetchUser), nil
		case 1:
			user := c.Sent()
			return c.Return(fmt.Sprint("hello ", user))
		}
		return c.Stop()
	}

Nothing about a suspended computation lives on the Go stack. Start, Resume, Throw and
Return each clone the incoming State, run the body until it yields, completes or throws,
and hand back a Step carrying the new State. Structured exception handling is emulated
with a try table and completion records (DispatchException, Abrupt, Complete, Finish and
Catch), so an error returned by a body can be caught by an enclosing catch location or
routed through pending finally blocks without escaping the reification boundary.
*/
package coroutine
