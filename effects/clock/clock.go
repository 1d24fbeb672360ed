// Package clock is the injectable time source behind recurring effects.
//
// Effects never read wall-clock time directly. Environments carry a Clock,
// so tests substitute a Manual clock and advance it by hand.
package clock

import (
	"context"
	"time"

	"github.com/rickb777/date/v2/timespan"
)

type TimeSpan = timespan.TimeSpan

// Tick is one event of a schedule.
type Tick struct {
	// Seq counts ticks of the schedule, starting at 1.
	Seq int
	At  time.Time
	// Span covers the previous tick (or the schedule start) up to At.
	Span TimeSpan
}

// Clock produces schedules.
//
// Schedule returns a lazy, infinite, non-restartable sequence of ticks, one
// per interval. The channel is closed once ctx is done. Panics if interval is
// not positive.
type Clock interface {
	Now() time.Time
	Schedule(ctx context.Context, interval time.Duration) <-chan Tick
}

func newTick(seq int, from, at time.Time) Tick {
	return Tick{Seq: seq, At: at, Span: timespan.BetweenTimes(from, at)}
}

func mustBePositive(interval time.Duration) {
	if interval <= 0 {
		panic("clock: non-positive interval for Schedule")
	}
}

type realtime struct{}

// Realtime returns a Clock backed by time.Ticker.
func Realtime() Clock {
	return realtime{}
}

func (realtime) Now() time.Time {
	return time.Now()
}

func (realtime) Schedule(ctx context.Context, interval time.Duration) <-chan Tick {
	mustBePositive(interval)
	ch := make(chan Tick)
	ready := make(chan struct{})

	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := time.Now()
		seq := 0
		close(ready)

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				seq++
				select {
				case ch <- newTick(seq, last, now):
				case <-ctx.Done():
					return
				}
				last = now
			}
		}
	}()
	<-ready

	return ch
}
