package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/on-the-ground/lifecycle_ive_go/effects"
	"github.com/on-the-ground/lifecycle_ive_go/effects/clock"
	"github.com/on-the-ground/lifecycle_ive_go/effects/engine"
	"github.com/on-the-ground/lifecycle_ive_go/effects/log"
	"github.com/on-the-ground/lifecycle_ive_go/effects/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
	settle  = 50 * time.Millisecond
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type recorder[A any] struct {
	mu  sync.Mutex
	got []A
}

func (r *recorder[A]) dispatch(a A) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, a)
}

func (r *recorder[A]) snapshot() []A {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]A(nil), r.got...)
}

func (r *recorder[A]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func newEngine[A any](t *testing.T, opts ...engine.Option) *engine.Engine[A] {
	t.Helper()
	eng := engine.New[A](context.Background(), engine.NewConfig(8, 2), opts...)
	t.Cleanup(eng.Close)
	return eng
}

func seqTimer(tok token.Token, clk clock.Clock) effects.Effect[int] {
	return effects.Timer(tok, time.Second, clk, func(t clock.Tick) int { return t.Seq })
}

func TestEngine_TimerTicksUntilCancelled(t *testing.T) {
	eng := newEngine[int](t)
	clk := clock.NewManual(epoch)
	rec := &recorder[int]{}
	tok := token.New("detail").Derive("timer")

	eng.Run(seqTimer(tok, clk), rec.dispatch)
	require.Equal(t, 1, eng.RunningUnder(tok))

	for i := 0; i < 3; i++ {
		clk.Advance(time.Second)
	}
	require.Eventually(t, func() bool { return rec.len() == 3 }, waitFor, tick)
	assert.Equal(t, []int{1, 2, 3}, rec.snapshot())

	assert.Equal(t, 1, eng.Cancel(token.New("detail")))
	assert.Equal(t, 0, eng.Running())

	clk.Advance(5 * time.Second)
	assert.Never(t, func() bool { return rec.len() > 3 }, settle, tick)
}

func TestEngine_AncestorCancelReachesDescendantsOnly(t *testing.T) {
	eng := newEngine[int](t)
	clk := clock.NewManual(epoch)
	rec := &recorder[int]{}

	app := token.New("app")
	detail := app.Derive("detail")
	for _, tok := range []token.Token{
		detail.Derive("timer"),
		detail.Derive("me").Derive("pulse"),
		detail.Derive("peer").Derive("pulse"),
		app.Derive("detail2").Derive("timer"),
		token.New("detail").Derive("timer"),
	} {
		eng.Run(seqTimer(tok, clk), rec.dispatch)
	}
	require.Equal(t, 5, eng.Running())
	require.Equal(t, 3, eng.RunningUnder(detail))

	assert.Equal(t, 3, eng.Cancel(detail))
	assert.Equal(t, 0, eng.RunningUnder(detail))
	assert.Equal(t, 2, eng.Running())

	remaining := eng.Tokens()
	require.Len(t, remaining, 2)
	assert.Equal(t, "app/detail2/timer", remaining[0].String())
	assert.Equal(t, "detail/timer", remaining[1].String())
}

func TestEngine_RestartUnderSameTokenReplaces(t *testing.T) {
	eng := newEngine[int](t)
	clk := clock.NewManual(epoch)
	rec := &recorder[int]{}
	tok := token.New("detail").Derive("timer")

	eng.Run(seqTimer(tok, clk), rec.dispatch)
	eng.Run(seqTimer(tok, clk), rec.dispatch)
	assert.Equal(t, 1, eng.Running(), "no leaked duplicate timer")
	assert.Equal(t, 1, eng.RunningUnder(tok))

	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return rec.len() == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return rec.len() > 1 }, settle, tick)
}

func TestEngine_CancelBeforeFirstTick(t *testing.T) {
	eng := newEngine[int](t)
	clk := clock.NewManual(epoch)
	rec := &recorder[int]{}
	tok := token.New("timer")

	eng.Run(effects.Concatenate(seqTimer(tok, clk), effects.Cancel[int](tok)), rec.dispatch)
	assert.Equal(t, 0, eng.Running(), "cancel inside a concatenation runs immediately")

	clk.Advance(3 * time.Second)
	assert.Never(t, func() bool { return rec.len() > 0 }, settle, tick)
}

func TestEngine_CancelUnknownTokenIsNoop(t *testing.T) {
	eng := newEngine[int](t)

	assert.Equal(t, 0, eng.Cancel(token.New("nobody")))
	eng.Run(effects.Cancel[int](token.New("nobody").Derive("child")), func(int) {
		t.Fatal("cancel must not dispatch")
	})
	assert.Equal(t, 0, eng.Running())
}

func TestEngine_FireOnceDeliversAndUnregisters(t *testing.T) {
	eng := newEngine[int](t)
	rec := &recorder[int]{}

	eng.Run(effects.Just(5), rec.dispatch)
	eng.Run(effects.Cancellable(effects.FireOnce(func(context.Context) (int, error) {
		return 6, nil
	}), token.New("load")), rec.dispatch)

	require.Eventually(t, func() bool { return rec.len() == 2 }, waitFor, tick)
	assert.ElementsMatch(t, []int{5, 6}, rec.snapshot())
	assert.Eventually(t, func() bool { return eng.Running() == 0 }, waitFor, tick)
}

func TestEngine_TaskFailureIsDeliveredAsAction(t *testing.T) {
	eng := newEngine[effects.Result[string]](t)
	rec := &recorder[effects.Result[string]]{}
	boom := errors.New("boom")
	identity := func(r effects.Result[string]) effects.Result[string] { return r }

	eng.Run(effects.Task(func(context.Context) (string, error) { return "", boom }, identity), rec.dispatch)
	eng.Run(effects.Task(func(context.Context) (string, error) { panic("kaput") }, identity), rec.dispatch)
	eng.Run(effects.Task(func(context.Context) (string, error) { return "ok", nil }, identity), rec.dispatch)

	require.Eventually(t, func() bool { return rec.len() == 3 }, waitFor, tick)

	var failures []error
	var values []string
	for _, r := range rec.snapshot() {
		if r.Failed() {
			failures = append(failures, r.Err)
		} else {
			values = append(values, r.Value)
		}
	}
	assert.Equal(t, []string{"ok"}, values)
	require.Len(t, failures, 2)
	var sawBoom, sawPanic bool
	for _, err := range failures {
		sawBoom = sawBoom || errors.Is(err, boom)
		sawPanic = sawPanic || errors.Is(err, effects.ErrEffectPanicked)
	}
	assert.True(t, sawBoom)
	assert.True(t, sawPanic)
}

func TestEngine_UnhandledFailureIsLogged(t *testing.T) {
	logger, logs := log.NewObserved(zap.DebugLevel)
	eng := newEngine[int](t, engine.WithLogger(logger))
	rec := &recorder[int]{}

	eng.Run(effects.FireOnce(func(context.Context) (int, error) {
		return 0, errors.New("unreachable host")
	}), rec.dispatch)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("effect failed").Len() == 1
	}, waitFor, tick)
	assert.Equal(t, 0, rec.len())
	assert.Eventually(t, func() bool { return eng.Running() == 0 }, waitFor, tick)
}

func TestEngine_CancelledOnceDropsItsResult(t *testing.T) {
	eng := newEngine[int](t)
	rec := &recorder[int]{}
	tok := token.New("load")
	started := make(chan struct{})

	eng.Run(effects.Cancellable(effects.FireOnce(func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 1, nil
	}), tok), rec.dispatch)

	<-started
	assert.Equal(t, 1, eng.Cancel(tok))
	assert.Never(t, func() bool { return rec.len() > 0 }, settle, tick)
}

func TestEngine_DispatchPanicDoesNotStopDelivery(t *testing.T) {
	eng := newEngine[int](t)
	clk := clock.NewManual(epoch)
	rec := &recorder[int]{}

	eng.Run(seqTimer(token.New("timer"), clk), func(n int) {
		if n == 1 {
			panic("reducer blew up")
		}
		rec.dispatch(n)
	})

	clk.Advance(time.Second)
	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return rec.len() == 1 }, waitFor, tick)
	assert.Equal(t, []int{2}, rec.snapshot())
}

func TestEngine_InvalidTimerIsNotRegistered(t *testing.T) {
	eng := newEngine[int](t)

	eng.Run(effects.Timer(token.New("t"), time.Second, nil, func(clock.Tick) int { return 0 }), func(int) {})
	eng.Run(effects.Timer(token.New("t"), 0, clock.NewManual(epoch), func(clock.Tick) int { return 0 }), func(int) {})
	assert.Equal(t, 0, eng.Running())
}

func TestEngine_CloseStopsEverything(t *testing.T) {
	eng := engine.New[int](context.Background(), engine.NewConfig(1, 1))
	clk := clock.NewManual(epoch)
	rec := &recorder[int]{}

	eng.Run(seqTimer(token.New("a"), clk), rec.dispatch)
	eng.Run(effects.FireOnce(func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}), rec.dispatch)
	require.Equal(t, 2, eng.Running())

	eng.Close()
	assert.Equal(t, 0, eng.Running())
	assert.Eventually(t, func() bool { return clk.Subscribers() == 0 }, waitFor, tick)

	eng.Run(seqTimer(token.New("b"), clk), rec.dispatch)
	assert.Equal(t, 0, eng.Running(), "run after close is ignored")
	eng.Close()
}

func TestEngine_ParentContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.New[int](ctx, engine.NewConfig(1, 1))
	defer eng.Close()
	clk := clock.NewManual(epoch)

	eng.Run(seqTimer(token.New("a"), clk), func(int) {})
	require.Equal(t, 1, eng.Running())

	cancel()
	assert.Eventually(t, func() bool { return eng.Running() == 0 }, waitFor, tick)
}

func TestEngine_CancellableSequenceRunsEveryMember(t *testing.T) {
	eng := newEngine[int](t)
	rec := &recorder[int]{}
	tok := token.New("load")
	release := make(chan struct{})
	member := func(n int) effects.Effect[int] {
		return effects.FireOnce(func(context.Context) (int, error) {
			<-release
			return n, nil
		})
	}

	eng.Run(effects.Cancellable(effects.Concatenate(member(1), member(2)), tok), rec.dispatch)
	require.Equal(t, 2, eng.RunningUnder(tok))

	close(release)
	require.Eventually(t, func() bool { return rec.len() == 2 }, waitFor, tick)
	assert.ElementsMatch(t, []int{1, 2}, rec.snapshot())
}

func TestEngine_CancelReachesEveryCancellableMember(t *testing.T) {
	eng := newEngine[int](t)
	rec := &recorder[int]{}
	tok := token.New("load")
	blocked := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	eng.Run(effects.Cancellable(effects.Concatenate(effects.FireOnce(blocked), effects.FireOnce(blocked)), tok), rec.dispatch)
	require.Equal(t, 2, eng.Running())

	assert.Equal(t, 2, eng.Cancel(tok))
	assert.Equal(t, 0, eng.Running())
	assert.Never(t, func() bool { return rec.len() > 0 }, settle, tick)
}

func TestEngine_UntrackedEffectsAreOutOfReachOfCancel(t *testing.T) {
	eng := newEngine[int](t)
	clk := clock.NewManual(epoch)
	blocked := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	eng.Run(effects.FireOnce(blocked), func(int) {})
	eng.Run(effects.FireOnce(blocked), func(int) {})
	eng.Run(seqTimer(token.Token{}, clk), func(int) {})
	require.Equal(t, 3, eng.Running(), "untracked effects never replace each other")

	for _, tok := range []token.Token{token.New("_anonymous"), token.New("%anonymous"), {}} {
		assert.Equal(t, 0, eng.Cancel(tok), tok.String())
	}
	assert.Equal(t, 3, eng.Running())
	assert.Empty(t, eng.Tokens())
}
