// Package effects describes side-work as data.
//
// A reducer never performs I/O or starts timers itself. It returns an Effect:
// a closed sum of Nothing, Once, Recurring, Cancellation and Sequence. Effects
// are inert until an engine (see package effects/engine) runs them, and every
// long-lived piece of work is named by a hierarchical token (package
// effects/token) so it can be cancelled later, together with everything derived
// from it.
//
// # Building effects
//
//   - None: nothing to do
//   - FireOnce, FireAndForget, Just, Task: one-shot asynchronous work
//   - Timer: one action per tick of an injected clock.Clock
//   - Cancel: stop every effect under a token
//   - Concatenate: run several effects as one unit, in order
//
// # Composing
//
// Map re-addresses produced actions, which is how a child's effects are lifted
// into its parent's action type. Cancellable names one-shot work with a token.
//
// Example:
//
//	func onAppear(env Environment) effects.Effect[Action] {
//	    return effects.Timer(env.Token().Derive("timer"), time.Second, env.Clock,
//	        func(clock.Tick) Action { return TimerTicked{} })
//	}
package effects
