package effects

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/on-the-ground/lifecycle_ive_go/effects/clock"
	"github.com/on-the-ground/lifecycle_ive_go/effects/token"
)

// Effect describes side-work producing actions of type A.
//
// Effect is a sealed interface: Nothing, Once, Recurring, Cancellation and
// Sequence are its only variants. An Effect value is inert data; nothing runs
// until it is handed to an engine.
type Effect[A any] interface {
	effect(A)
}

var (
	_ Effect[any] = Nothing[any]{}
	_ Effect[any] = Once[any]{}
	_ Effect[any] = Recurring[any]{}
	_ Effect[any] = Cancellation[any]{}
	_ Effect[any] = Sequence[any]{}
)

// Nothing produces nothing.
type Nothing[A any] struct{}

func (Nothing[A]) effect(A) {}

// Once runs Work asynchronously exactly once.
type Once[A any] struct {
	// Token names the running work. The zero token leaves it untracked by name.
	Token token.Token
	// Work reports whether it produced an action.
	Work func(context.Context) (A, bool, error)
	// OnFailure turns a failure of Work into an action.
	// When nil, failures are logged and swallowed.
	OnFailure func(error) (A, bool)
}

func (Once[A]) effect(A) {}

// Recurring produces one action per tick of Clock until its token is cancelled.
type Recurring[A any] struct {
	Token    token.Token
	Interval time.Duration
	Clock    clock.Clock
	OnTick   func(clock.Tick) A
}

func (Recurring[A]) effect(A) {}

// Cancellation stops every running effect whose token has Token as ancestor.
type Cancellation[A any] struct {
	Token token.Token
}

func (Cancellation[A]) effect(A) {}

// Sequence runs its members in order. Asynchronous members are started in
// order and then run concurrently; cancellations take effect immediately.
type Sequence[A any] struct {
	Effects []Effect[A]
}

func (Sequence[A]) effect(A) {}

// None returns the effect that does nothing.
func None[A any]() Effect[A] {
	return Nothing[A]{}
}

// FireOnce runs work once and dispatches its result.
// A failing work produces no action.
func FireOnce[A any](work func(context.Context) (A, error)) Effect[A] {
	return Once[A]{
		Work: func(ctx context.Context) (A, bool, error) {
			a, err := work(ctx)
			return a, err == nil, err
		},
	}
}

// FireAndForget runs work once without producing an action.
func FireAndForget[A any](work func(context.Context) error) Effect[A] {
	return Once[A]{
		Work: func(ctx context.Context) (A, bool, error) {
			var zero A
			return zero, false, work(ctx)
		},
	}
}

// Just dispatches a asynchronously.
func Just[A any](a A) Effect[A] {
	return Once[A]{
		Work: func(context.Context) (A, bool, error) {
			return a, true, nil
		},
	}
}

// Task runs work once and always reports back: the result, or the failure,
// is wrapped in a Result and turned into an action by toAction.
func Task[R, A any](work func(context.Context) (R, error), toAction func(Result[R]) A) Effect[A] {
	return Once[A]{
		Work: func(ctx context.Context) (A, bool, error) {
			r, err := work(ctx)
			if err != nil {
				var zero A
				return zero, false, err
			}
			return toAction(ResultFrom(r, nil)), true, nil
		},
		OnFailure: func(err error) (A, bool) {
			var zero R
			return toAction(ResultFrom(zero, err)), true
		},
	}
}

// Timer produces onTick(tick) for every tick of clk, every interval, until
// tok is cancelled. Starting a timer under a token that is already running
// replaces the running one.
func Timer[A any](tok token.Token, interval time.Duration, clk clock.Clock, onTick func(clock.Tick) A) Effect[A] {
	return Recurring[A]{
		Token:    tok,
		Interval: interval,
		Clock:    clk,
		OnTick:   onTick,
	}
}

// Cancel stops all running work under tok, descendants included.
func Cancel[A any](tok token.Token) Effect[A] {
	return Cancellation[A]{Token: tok}
}

// Concatenate runs effects in the listed order.
// Nested sequences are flattened and Nothing members dropped.
func Concatenate[A any](effs ...Effect[A]) Effect[A] {
	flat := make([]Effect[A], 0, len(effs))
	for _, e := range effs {
		switch e := e.(type) {
		case nil, Nothing[A]:
		case Sequence[A]:
			flat = append(flat, e.Effects...)
		default:
			flat = append(flat, e)
		}
	}
	switch len(flat) {
	case 0:
		return None[A]()
	case 1:
		return flat[0]
	default:
		return Sequence[A]{Effects: flat}
	}
}

// Cancellable names the Once work of e so that Cancel(tok) reaches it. A
// single Once is named tok. The members of a Sequence are named by position
// under tok (tok/0, tok/1, ...), so one member never replaces another.
func Cancellable[A any](e Effect[A], tok token.Token) Effect[A] {
	switch e := e.(type) {
	case nil:
		return None[A]()
	case Once[A]:
		e.Token = tok
		return e
	case Sequence[A]:
		effs := make([]Effect[A], len(e.Effects))
		for i, member := range e.Effects {
			effs[i] = Cancellable(member, tok.Derive(strconv.Itoa(i)))
		}
		return Sequence[A]{Effects: effs}
	case Nothing[A], Recurring[A], Cancellation[A]:
		return e
	default:
		panic(fmt.Sprintf("effects: unknown effect variant %T", e))
	}
}

// Map re-addresses the actions produced by e. Tokens are left untouched.
func Map[A, B any](e Effect[A], f func(A) B) Effect[B] {
	switch e := e.(type) {
	case nil, Nothing[A]:
		return None[B]()
	case Once[A]:
		mapped := Once[B]{
			Token: e.Token,
			Work: func(ctx context.Context) (B, bool, error) {
				a, ok, err := e.Work(ctx)
				if err != nil || !ok {
					var zero B
					return zero, false, err
				}
				return f(a), true, nil
			},
		}
		if e.OnFailure != nil {
			mapped.OnFailure = func(err error) (B, bool) {
				a, ok := e.OnFailure(err)
				if !ok {
					var zero B
					return zero, false
				}
				return f(a), true
			}
		}
		return mapped
	case Recurring[A]:
		return Recurring[B]{
			Token:    e.Token,
			Interval: e.Interval,
			Clock:    e.Clock,
			OnTick: func(t clock.Tick) B {
				return f(e.OnTick(t))
			},
		}
	case Cancellation[A]:
		return Cancellation[B]{Token: e.Token}
	case Sequence[A]:
		effs := make([]Effect[B], len(e.Effects))
		for i, member := range e.Effects {
			effs[i] = Map(member, f)
		}
		return Sequence[B]{Effects: effs}
	default:
		// Effect is sealed; reaching here is a bug.
		panic(fmt.Sprintf("effects: unknown effect variant %T", e))
	}
}
