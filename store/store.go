// Package store owns application state and serializes dispatch.
//
// A Store applies actions one at a time through its root reducer, hands the
// resulting effects to an engine, and feeds the actions those effects produce
// back into Send. Child views are derived with Scope and IfLet; they share
// the root's queue and engine and only narrow what is read and sent.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/on-the-ground/lifecycle_ive_go/effects"
	"github.com/on-the-ground/lifecycle_ive_go/effects/engine"
	"github.com/on-the-ground/lifecycle_ive_go/effects/log"
	"github.com/on-the-ground/lifecycle_ive_go/effects/token"
	"github.com/on-the-ground/lifecycle_ive_go/reducer"
)

// Store is a handle on state S accepting actions A.
type Store[S, A any] struct {
	token     token.Token
	state     func() S
	send      func(A)
	subscribe func(func(S)) func()
	running   func(token.Token) int
	settle    func(context.Context) error
}

// Send applies a and returns once it has been reduced and its effects handed
// to the engine. A send issued while observers are being notified, from an
// observer or from any other goroutine, is queued behind the current action
// and returns before it is applied. Actions are always applied in the order
// they were queued, so callers sequence dependent actions by sending them in
// order rather than by reading State in between.
func (s *Store[S, A]) Send(a A) {
	s.send(a)
}

// Settle waits until every queued action has been applied. It must not be
// called from an observer.
func (s *Store[S, A]) Settle(ctx context.Context) error {
	return s.settle(ctx)
}

// State returns a snapshot of the current state.
func (s *Store[S, A]) State() S {
	return s.state()
}

// Subscribe registers fn to be called with the new state after every
// mutation. The returned func unsubscribes.
func (s *Store[S, A]) Subscribe(fn func(S)) (unsubscribe func()) {
	return s.subscribe(fn)
}

// Token is the scope token of the store; the zero token for an unscoped root.
func (s *Store[S, A]) Token() token.Token {
	return s.token
}

// Running counts engine effects under the store's token, or all of them for
// a store without a token.
func (s *Store[S, A]) Running() int {
	return s.running(s.token)
}

type Option[S any] func(*options[S])

type options[S any] struct {
	token  token.Token
	logger *zap.Logger
	equal  func(a, b S) bool
}

// WithToken sets the root scope token. Without it a store whose environment
// is reducer.Scoped takes the environment's token.
func WithToken[S any](tok token.Token) Option[S] {
	return func(o *options[S]) { o.token = tok }
}

func WithLogger[S any](logger *zap.Logger) Option[S] {
	return func(o *options[S]) { o.logger = logger }
}

// WithEquality skips observer notification when equal reports the state
// unchanged by an action.
func WithEquality[S any](equal func(a, b S) bool) Option[S] {
	return func(o *options[S]) { o.equal = equal }
}

// Comparable is an equality for comparable state types.
func Comparable[S comparable]() func(a, b S) bool {
	return func(a, b S) bool { return a == b }
}

type pending[A any] struct {
	action A
	done   chan struct{}
}

type core[S, A, E any] struct {
	id      uuid.UUID
	logger  *zap.Logger
	reducer reducer.Reducer[S, A, E]
	env     E
	engine  *engine.Engine[A]
	equal   func(a, b S) bool

	mu        sync.Mutex
	state     S
	queue     []pending[A]
	draining  bool
	idle      chan struct{}
	notifying bool
	observers map[uint64]func(S)
	nextObs   uint64
}

// New creates a root store over initial state. Effects returned by r run on
// eng, and their actions are sent back to the store.
func New[S, A, E any](initial S, r reducer.Reducer[S, A, E], env E, eng *engine.Engine[A], opts ...Option[S]) *Store[S, A] {
	o := options[S]{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.token.IsZero() {
		if scoped, ok := any(env).(reducer.Scoped); ok {
			o.token = scoped.Token()
		}
	}

	c := &core[S, A, E]{
		id:        uuid.New(),
		reducer:   r,
		env:       env,
		engine:    eng,
		equal:     o.equal,
		state:     initial,
		observers: make(map[uint64]func(S)),
	}
	c.logger = log.OrNop(o.logger).Named("store").With(
		zap.Stringer("store", c.id),
		zap.Stringer("token", o.token),
	)

	return &Store[S, A]{
		token:     o.token,
		state:     c.snapshot,
		send:      c.send,
		subscribe: c.subscribe,
		running:   c.running,
		settle:    c.settle,
	}
}

func (c *core[S, A, E]) settle(ctx context.Context) error {
	c.mu.Lock()
	if !c.draining {
		c.mu.Unlock()
		return nil
	}
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *core[S, A, E]) snapshot() S {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *core[S, A, E]) running(tok token.Token) int {
	if tok.IsZero() {
		return c.engine.Running()
	}
	return c.engine.RunningUnder(tok)
}

func (c *core[S, A, E]) subscribe(fn func(S)) func() {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

func (c *core[S, A, E]) send(a A) {
	c.mu.Lock()
	if c.draining {
		if c.notifying {
			c.queue = append(c.queue, pending[A]{action: a})
			c.mu.Unlock()
			return
		}
		done := make(chan struct{})
		c.queue = append(c.queue, pending[A]{action: a, done: done})
		c.mu.Unlock()
		<-done
		return
	}
	c.draining = true
	c.idle = make(chan struct{})
	c.queue = append(c.queue, pending[A]{action: a})
	c.mu.Unlock()

	c.drain()
}

// drain applies queued actions until the queue is empty. Only one goroutine
// drains at a time.
func (c *core[S, A, E]) drain() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.draining = false
			close(c.idle)
			c.mu.Unlock()
			return
		}
		p := c.queue[0]
		c.queue[0] = pending[A]{}
		c.queue = c.queue[1:]

		before := c.state
		eff := c.reduce(p.action)
		after := c.state
		changed := c.equal == nil || !c.equal(before, after)
		var observers []func(S)
		if changed {
			observers = c.observerList()
			c.notifying = len(observers) > 0
		}
		c.mu.Unlock()

		c.engine.Run(eff, c.send)
		for _, fn := range observers {
			c.notify(fn, after)
		}

		c.mu.Lock()
		c.notifying = false
		c.mu.Unlock()
		if p.done != nil {
			close(p.done)
		}
	}
}

// reduce runs the reducer with c.mu held. A panicking reducer leaves the
// store usable: the action yields no effect.
func (c *core[S, A, E]) reduce(a A) (eff effects.Effect[A]) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in reducer", zap.Any("action", a), zap.Any("panic", r))
			eff = effects.None[A]()
		}
	}()
	return c.reducer(&c.state, a, c.env)
}

func (c *core[S, A, E]) observerList() []func(S) {
	ids := make([]uint64, 0, len(c.observers))
	for id := range c.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(S), len(ids))
	for i, id := range ids {
		fns[i] = c.observers[id]
	}
	return fns
}

func (c *core[S, A, E]) notify(fn func(S), state S) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in observer", zap.Any("panic", r))
		}
	}()
	fn(state)
}
