// Package reducer composes state reducers.
//
// A Reducer mutates its state in place and returns the effect to run. Small
// reducers are lifted onto a larger state with Pullback and joined with
// Combine, so independent slices never learn about each other:
//
//	app := reducer.Combine(
//		reducer.Pullback(detail, reducer.Optional(detailSlot), detailCase, toDetailEnv),
//		parent,
//	)
package reducer

import (
	"github.com/on-the-ground/lifecycle_ive_go/effects"
	"github.com/on-the-ground/lifecycle_ive_go/shared/helper"
	"github.com/on-the-ground/lifecycle_ive_go/shared/option"
)

// Reducer applies action to state, using env for dependencies, and returns
// the effect to run. Reducers must not perform side work themselves.
type Reducer[S, A, E any] func(state *S, action A, env E) effects.Effect[A]

// Empty returns a reducer that ignores every action.
func Empty[S, A, E any]() Reducer[S, A, E] {
	return func(*S, A, E) effects.Effect[A] {
		return effects.None[A]()
	}
}

// Combine runs reducers in the listed order against the same state, so later
// members observe the mutations of earlier ones. Their effects are
// concatenated in the same order.
func Combine[S, A, E any](reducers ...Reducer[S, A, E]) Reducer[S, A, E] {
	return func(state *S, action A, env E) effects.Effect[A] {
		effs := make([]effects.Effect[A], 0, len(reducers))
		for _, r := range reducers {
			effs = append(effs, r(state, action, env))
		}
		return effects.Concatenate(effs...)
	}
}

// CasePath addresses one variant C of a parent action P.
type CasePath[P, C any] struct {
	// Extract returns the child action carried by p, if p is that variant.
	Extract func(p P) (C, bool)
	// Embed wraps a child action into the parent variant.
	Embed func(c C) P
}

// CaseOf builds a CasePath for a parent action variant V that carries a
// child action C. embed builds the variant, unwrap reads the child back.
//
//	reducer.CaseOf(
//		func(a reducer.LifecycleAction[DetailAction]) AppAction { return Detail{Action: a} },
//		func(d Detail) reducer.LifecycleAction[DetailAction] { return d.Action },
//	)
func CaseOf[P, V, C any](embed func(C) P, unwrap func(V) C) CasePath[P, C] {
	return CasePath[P, C]{
		Extract: func(p P) (C, bool) {
			v, ok := helper.TypedValueOf[V](p)
			if !ok {
				var zero C
				return zero, false
			}
			return unwrap(v), true
		},
		Embed: embed,
	}
}

// Pullback lifts child onto a parent state, action and environment.
//
// toState resolves the child slot inside the parent state. A nil slot means
// the child is not mounted: its actions are dropped without touching the
// state and without producing any effect. toEnv builds the child's
// environment, including its already-derived token, before the child runs.
// The child's effects are re-addressed into parent actions through action.Embed.
func Pullback[S, A, E, PS, PA, PE any](
	child Reducer[S, A, E],
	toState func(*PS) *S,
	action CasePath[PA, A],
	toEnv func(PE) E,
) Reducer[PS, PA, PE] {
	return func(state *PS, pa PA, env PE) effects.Effect[PA] {
		a, ok := action.Extract(pa)
		if !ok {
			return effects.None[PA]()
		}
		slot := toState(state)
		if slot == nil {
			return effects.None[PA]()
		}
		return effects.Map(child(slot, a, toEnv(env)), action.Embed)
	}
}

// Optional resolves an optional slot, nil when it is absent.
func Optional[PS, S any](get func(*PS) *option.Option[S]) func(*PS) *S {
	return func(state *PS) *S {
		return get(state).Ptr()
	}
}

// OptionalReducer lifts r onto an optional state that is skipped while absent.
func OptionalReducer[S, A, E any](r Reducer[S, A, E]) Reducer[option.Option[S], A, E] {
	return func(state *option.Option[S], action A, env E) effects.Effect[A] {
		slot := state.Ptr()
		if slot == nil {
			return effects.None[A]()
		}
		return r(slot, action, env)
	}
}
