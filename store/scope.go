package store

import (
	"github.com/on-the-ground/lifecycle_ive_go/reducer"
	"github.com/on-the-ground/lifecycle_ive_go/shared/option"
)

// Scope derives a child view of parent. The child reads toState of the
// parent's state and sends fromAction(a) to the parent. Its token is the
// parent's token derived with key; an empty key keeps the parent's token.
//
// The child's token is only used to report and count running work. Lifecycle
// teardown cancels the token of the child's environment, so key must be the
// key the parent environment derives that token with.
//
// Scope has no side effects; it can be called freely while rendering.
func Scope[PS, PA, S, A any](parent *Store[PS, PA], key string, toState func(PS) S, fromAction func(A) PA) *Store[S, A] {
	tok := parent.token
	if key != "" {
		tok = tok.Derive(key)
	}
	return &Store[S, A]{
		token: tok,
		state: func() S {
			return toState(parent.state())
		},
		send: func(a A) {
			parent.send(fromAction(a))
		},
		subscribe: func(fn func(S)) func() {
			return parent.subscribe(func(ps PS) {
				fn(toState(ps))
			})
		},
		running: parent.running,
		settle:  parent.settle,
	}
}

// IfLet narrows a store of an optional state to its value. It reports false
// when the state is absent at call time. While the slot stays absent later
// on, State returns the zero S and observers are not called; sent actions
// still reach the parent, where pullbacks drop them.
func IfLet[S, A any](s *Store[option.Option[S], A]) (*Store[S, A], bool) {
	if s.state().IsNone() {
		return nil, false
	}
	return &Store[S, A]{
		token: s.token,
		state: func() S {
			v, _ := s.state().Get()
			return v
		},
		send: s.send,
		subscribe: func(fn func(S)) func() {
			return s.subscribe(func(o option.Option[S]) {
				if v, ok := o.Get(); ok {
					fn(v)
				}
			})
		},
		running: s.running,
		settle:  s.settle,
	}, true
}

// Lifted exposes the wrapped actions of a lifecycle store, so consumers send
// plain A while the store keeps accepting lifecycle signals.
func Lifted[S, A any](s *Store[S, reducer.LifecycleAction[A]]) *Store[S, A] {
	return Scope(s, "", func(state S) S { return state }, reducer.Wrap[A])
}

// NotifyAppeared sends the Appeared signal to a lifecycle store.
func NotifyAppeared[S, A any](s *Store[S, reducer.LifecycleAction[A]]) {
	s.Send(reducer.Appeared[A]{})
}

// NotifyDisappeared sends the Disappeared signal to a lifecycle store.
func NotifyDisappeared[S, A any](s *Store[S, reducer.LifecycleAction[A]]) {
	s.Send(reducer.Disappeared[A]{})
}
