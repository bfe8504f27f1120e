/*
Package runner drives a subscription to completion.

The runner alternates evaluation passes with effect dispatch: every effect a pass
leaves unresolved is handed to the handler registered for its type, the outcome is
written to the effect store and the cached effect is invalidated, so the next pass
picks it up. The loop stops once the subscription settles, when nothing left
pending can be handled, or after MaxPasses.

# Usage

	r := runner.New(interp, store,
		runner.WithLogger(logger),
		runner.WithMaxPasses(32),
	)
	r.Handle("fetch", runner.HandlerFunc(fetch))

	report, err := r.Run(ctx, handle)
*/
package runner
