package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Clock = (*Manual)(nil)

// Manual is a deterministic Clock. Time only moves on Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	nextID uint64
	subs   map[uint64]*schedule
}

type schedule struct {
	mu       sync.Mutex
	ctx      context.Context
	interval time.Duration
	last     time.Time
	next     time.Time
	seq      int
	ch       chan Tick
	closed   bool
}

// NewManual returns a Manual clock reading start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:  start,
		subs: make(map[uint64]*schedule),
	}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Schedule(ctx context.Context, interval time.Duration) <-chan Tick {
	mustBePositive(interval)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	s := &schedule{
		ctx:      ctx,
		interval: interval,
		last:     m.now,
		next:     m.now.Add(interval),
		ch:       make(chan Tick),
	}
	m.subs[id] = s
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()

		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	}()

	return s.ch
}

// Subscribers reports the number of live schedules.
func (m *Manual) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Advance moves the clock forward by d and emits every tick that fell due,
// in schedule creation order. It returns once each tick has been received or
// its schedule was cancelled.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	ids := make([]uint64, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	subs := make([]*schedule, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, m.subs[id])
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.fire(now)
	}
}

func (s *schedule) fire(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.closed && !s.next.After(now) {
		s.seq++
		tick := newTick(s.seq, s.last, s.next)
		select {
		case s.ch <- tick:
		case <-s.ctx.Done():
			return
		}
		s.last = s.next
		s.next = s.next.Add(s.interval)
	}
}
