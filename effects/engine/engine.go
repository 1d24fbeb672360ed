// Package engine runs effects.
//
// An Engine executes effects.Effect values, keeps every running one-shot or
// recurring effect in a registry keyed by its token, and cancels by token:
// cancelling a token stops every registered effect whose token descends from
// it. Actions produced by effects are handed back through delivery workers,
// partitioned by token so one token's actions arrive in order.
//
//	eng := engine.New[Action](ctx, engine.NewConfig(16, 1), engine.WithLogger(logger))
//	defer eng.Close()
//	eng.Run(effect, store.Send)
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/on-the-ground/lifecycle_ive_go/effects"
	"github.com/on-the-ground/lifecycle_ive_go/effects/internal/handlers"
	effectmodel "github.com/on-the-ground/lifecycle_ive_go/effects/internal/model"
	"github.com/on-the-ground/lifecycle_ive_go/effects/log"
	"github.com/on-the-ground/lifecycle_ive_go/effects/token"
)

// Config sizes the delivery workers.
type Config = effectmodel.EffectScopeConfig

// NewConfig applies defaults: at least one buffered slot and one worker.
func NewConfig(bufferSize, numWorkers int) Config {
	return effectmodel.NewEffectScopeConfig(bufferSize, numWorkers)
}

// ErrEngineClosed is logged when effects are run on a closed engine.
var ErrEngineClosed = errors.New("engine closed")

// anonymousKey prefixes the registry keys of effects without a token.
// Token.String escapes '%', so no token renders with this prefix.
const anonymousKey = "%anonymous/"

type kind string

const (
	kindOnce  kind = "once"
	kindTimer kind = "timer"
)

// handle is a running effect. The registry owns it exclusively.
type handle struct {
	id     uuid.UUID
	key    string
	token  token.Token
	kind   kind
	cancel context.CancelFunc
}

func newHandle(tok token.Token, k kind, cancel context.CancelFunc) *handle {
	h := &handle{id: uuid.New(), token: tok, kind: k, cancel: cancel}
	if tok.IsZero() {
		h.key = anonymousKey + h.id.String()
	} else {
		h.key = tok.String()
	}
	return h
}

type delivery[A any] struct {
	h        *handle
	action   A
	final    bool
	dispatch func(A)
}

func (d delivery[A]) PartitionKey() string {
	return d.h.key
}

type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *Metrics
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(metrics *Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// Engine executes effects producing actions of type A.
type Engine[A any] struct {
	logger  *zap.Logger
	metrics *Metrics

	ctx        context.Context
	cancel     context.CancelFunc
	deliveries handlers.WorkerDispatcher[delivery[A]]

	mu       sync.Mutex
	registry *registry
	closed   bool
	wg       sync.WaitGroup
}

// New starts an engine. Cancelling ctx stops every running effect; Close
// must still be called to wait for them.
func New[A any](ctx context.Context, config Config, opts ...Option) *Engine[A] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	config = NewConfig(config.BufferSize, config.NumWorkers)

	ctx, cancel := context.WithCancel(ctx)
	e := &Engine[A]{
		logger:   log.OrNop(o.logger).Named("engine"),
		metrics:  o.metrics,
		ctx:      ctx,
		cancel:   cancel,
		registry: newRegistry(),
	}
	e.deliveries = handlers.NewDispatcher(ctx, config, e.deliver)
	e.logger.Debug("engine started",
		zap.Int("buffer_size", config.BufferSize),
		zap.Int("num_workers", config.NumWorkers),
	)
	return e
}

// Run executes eff. Produced actions are passed to dispatch from delivery
// worker goroutines, never from within Run.
func (e *Engine[A]) Run(eff effects.Effect[A], dispatch func(A)) {
	switch eff := eff.(type) {
	case nil, effects.Nothing[A]:
	case effects.Once[A]:
		e.runOnce(eff, dispatch)
	case effects.Recurring[A]:
		e.runRecurring(eff, dispatch)
	case effects.Cancellation[A]:
		e.Cancel(eff.Token)
	case effects.Sequence[A]:
		for _, member := range eff.Effects {
			e.Run(member, dispatch)
		}
	default:
		// Effect is sealed; reaching here is a bug.
		panic(fmt.Sprintf("engine: unknown effect variant %T", eff))
	}
}

// Cancel stops and unregisters every effect under tok, descendants included.
// It returns the number of effects stopped. Unknown tokens are a no-op.
func (e *Engine[A]) Cancel(tok token.Token) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	hs := e.registry.removeUnder(tok)
	for _, h := range hs {
		h.cancel()
	}
	n := len(hs)
	e.metrics.cancelled(n)
	e.logger.Debug("cancelled effects", zap.Stringer("token", tok), zap.Int("count", n))
	return n
}

// Running reports the number of registered effects.
func (e *Engine[A]) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.registry.all())
}

// RunningUnder reports the number of registered effects under tok.
func (e *Engine[A]) RunningUnder(tok token.Token) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.registry.under(tok))
}

// Tokens lists the tokens of registered effects, sorted. Effects started
// without a token are counted by Running but not listed.
func (e *Engine[A]) Tokens() []token.Token {
	e.mu.Lock()
	defer e.mu.Unlock()

	var toks []token.Token
	for _, h := range e.registry.all() {
		if !h.token.IsZero() {
			toks = append(toks, h.token)
		}
	}
	return toks
}

// Close cancels every effect and waits for effect and delivery goroutines
// to return. It must not be called from a dispatch callback.
func (e *Engine[A]) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	hs := e.registry.removeAll()
	for _, h := range hs {
		h.cancel()
	}
	n := len(hs)
	e.metrics.cancelled(n)
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	e.deliveries.Wait()
	e.logger.Debug("engine closed", zap.Int("cancelled", n))
}

// start registers a handle for tok before any work begins, replacing the
// handle already registered under the exact same token. A zero tok gets a
// handle of its own that no Cancel can reach.
func (e *Engine[A]) start(tok token.Token, k kind) (*handle, context.Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.logger.Warn("effect dropped", zap.Stringer("token", tok), zap.Error(ErrEngineClosed))
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(e.ctx)
	h := newHandle(tok, k, cancel)
	if old := e.registry.put(h); old != nil {
		old.cancel()
		e.metrics.replaced()
		e.logger.Debug("replaced running effect", zap.Stringer("token", tok), zap.Stringer("old", old.id))
	} else {
		e.metrics.register()
	}
	e.wg.Add(1)
	e.metrics.started(k)
	return h, ctx, true
}

// release unregisters h if it is still the handle registered under its token.
func (e *Engine[A]) release(h *handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.registry.remove(h) {
		h.cancel()
		e.metrics.unregister()
		return true
	}
	return false
}

func (e *Engine[A]) isCurrent(h *handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.current(h)
}

func (e *Engine[A]) enqueue(ctx context.Context, d delivery[A]) bool {
	select {
	case e.deliveries.GetChannelOf(d) <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

// deliver runs on a delivery worker. Deliveries from handles that were
// cancelled or replaced in the meantime are dropped.
func (e *Engine[A]) deliver(_ context.Context, d delivery[A]) {
	var live bool
	if d.final {
		live = e.release(d.h)
	} else {
		live = e.isCurrent(d.h)
	}
	if !live {
		e.metrics.dropped()
		e.logger.Debug("dropped stray action", zap.Stringer("token", d.h.token), zap.Stringer("handle", d.h.id))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while dispatching effect action",
				zap.Stringer("token", d.h.token),
				zap.Any("panic", r),
			)
		}
	}()
	d.dispatch(d.action)
	e.metrics.delivered()
}

func (e *Engine[A]) runOnce(eff effects.Once[A], dispatch func(A)) {
	tok := eff.Token
	h, ctx, ok := e.start(tok, kindOnce)
	if !ok {
		return
	}

	go func() {
		defer e.wg.Done()

		action, produced, err := perform(ctx, eff.Work)
		if ctx.Err() != nil {
			// cancelled or replaced: whatever came back is stale
			e.release(h)
			return
		}
		if err != nil {
			e.metrics.failed(kindOnce)
			if eff.OnFailure != nil {
				action, produced = eff.OnFailure(err)
			} else {
				e.logger.Error("effect failed", zap.Stringer("token", tok), zap.Error(err))
			}
		}
		if !produced || !e.enqueue(ctx, delivery[A]{h: h, action: action, final: true, dispatch: dispatch}) {
			e.release(h)
		}
	}()
}

func (e *Engine[A]) runRecurring(eff effects.Recurring[A], dispatch func(A)) {
	if eff.Clock == nil || eff.Interval <= 0 {
		e.metrics.failed(kindTimer)
		e.logger.Error("invalid timer effect",
			zap.Stringer("token", eff.Token),
			zap.Duration("interval", eff.Interval),
			zap.Bool("has_clock", eff.Clock != nil),
		)
		return
	}
	h, ctx, ok := e.start(eff.Token, kindTimer)
	if !ok {
		return
	}
	ticks := eff.Clock.Schedule(ctx, eff.Interval)

	go func() {
		defer e.wg.Done()
		defer e.release(h)
		defer func() {
			if r := recover(); r != nil {
				e.metrics.failed(kindTimer)
				e.logger.Error("timer effect failed",
					zap.Stringer("token", eff.Token),
					zap.Error(fmt.Errorf("%w: %v", effects.ErrEffectPanicked, r)),
				)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-ticks:
				if !ok {
					return
				}
				if !e.enqueue(ctx, delivery[A]{h: h, action: eff.OnTick(tick), dispatch: dispatch}) {
					return
				}
			}
		}
	}()
}

// perform runs work, turning a panic into an error.
func perform[A any](ctx context.Context, work func(context.Context) (A, bool, error)) (a A, produced bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero A
			a, produced, err = zero, false, fmt.Errorf("%w: %v", effects.ErrEffectPanicked, r)
		}
	}()
	return work(ctx)
}
