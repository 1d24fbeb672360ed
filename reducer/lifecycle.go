package reducer

import (
	"fmt"

	"github.com/on-the-ground/lifecycle_ive_go/effects"
	"github.com/on-the-ground/lifecycle_ive_go/effects/token"
)

// LifecycleAction is the action type of a reducer wrapped by Lifecycle:
// the two lifecycle signals, or an action of the wrapped reducer.
type LifecycleAction[A any] interface {
	lifecycleAction(A)
}

var (
	_ LifecycleAction[any] = Appeared[any]{}
	_ LifecycleAction[any] = Disappeared[any]{}
	_ LifecycleAction[any] = Wrapped[any]{}
)

// Appeared signals that the scope was mounted.
type Appeared[A any] struct{}

// Disappeared signals that the scope was unmounted.
type Disappeared[A any] struct{}

// Wrapped carries an action of the wrapped reducer.
type Wrapped[A any] struct {
	Action A
}

func (Appeared[A]) lifecycleAction(A)    {}
func (Disappeared[A]) lifecycleAction(A) {}
func (Wrapped[A]) lifecycleAction(A)     {}

// Wrap lifts a into the lifecycle action type.
func Wrap[A any](a A) LifecycleAction[A] {
	return Wrapped[A]{Action: a}
}

// Unwrap returns the wrapped action, if la carries one.
func Unwrap[A any](la LifecycleAction[A]) (A, bool) {
	w, ok := la.(Wrapped[A])
	return w.Action, ok
}

// Phase is the mount state of a scope.
type Phase int

const (
	Unmounted Phase = iota
	Mounted
)

func (p Phase) String() string {
	switch p {
	case Unmounted:
		return "unmounted"
	case Mounted:
		return "mounted"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Scoped environments carry the token of the scope they were built for.
type Scoped interface {
	Token() token.Token
}

// Hooks configures Lifecycle.
type Hooks[S, A any, E Scoped] struct {
	// Phase locates the mount state inside S. Required.
	Phase func(*S) *Phase
	// OnAppear returns the effects to start on mount, usually long-lived
	// work under tokens derived from env.Token().
	OnAppear func(env E) effects.Effect[A]
	// OnDisappear returns extra teardown effects. Cancelling env.Token() is
	// always appended after them.
	OnDisappear func(env E) effects.Effect[A]
}

// Lifecycle decorates inner with the Appeared and Disappeared signals.
//
// The scope moves Unmounted -> Mounted on Appeared and back on Disappeared;
// a signal that does not change the phase is a no-op, so repeated signals
// are idempotent. Disappeared always cancels env.Token(), which stops every
// effect started under the scope or any of its descendants. Appearing again
// after a disappearance restarts the OnAppear effects cleanly.
func Lifecycle[S, A any, E Scoped](inner Reducer[S, A, E], hooks Hooks[S, A, E]) Reducer[S, LifecycleAction[A], E] {
	if hooks.Phase == nil {
		panic("reducer: Lifecycle requires a Phase accessor")
	}

	return func(state *S, action LifecycleAction[A], env E) effects.Effect[LifecycleAction[A]] {
		phase := hooks.Phase(state)

		switch action := action.(type) {
		case Appeared[A]:
			if *phase == Mounted {
				return effects.None[LifecycleAction[A]]()
			}
			*phase = Mounted
			if hooks.OnAppear == nil {
				return effects.None[LifecycleAction[A]]()
			}
			return effects.Map(hooks.OnAppear(env), Wrap[A])

		case Disappeared[A]:
			if *phase == Unmounted {
				return effects.None[LifecycleAction[A]]()
			}
			*phase = Unmounted
			var teardown effects.Effect[A] = effects.None[A]()
			if hooks.OnDisappear != nil {
				teardown = hooks.OnDisappear(env)
			}
			return effects.Concatenate(
				effects.Map(teardown, Wrap[A]),
				effects.Cancel[LifecycleAction[A]](env.Token()),
			)

		case Wrapped[A]:
			return effects.Map(inner(state, action.Action, env), Wrap[A])

		default:
			panic(fmt.Sprintf("reducer: unknown lifecycle action %T", action))
		}
	}
}
