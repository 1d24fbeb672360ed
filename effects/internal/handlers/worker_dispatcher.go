package handlers

import (
	"context"
	"sync"

	effectmodel "github.com/on-the-ground/lifecycle_ive_go/effects/internal/model"
)

// --- common interface ---

// WorkerDispatcher hands messages to worker goroutines.
// Workers stop once the context they were started with is done; channels are
// never closed, so senders must select on their own context.
type WorkerDispatcher[T any] interface {
	GetChannelOf(msg T) chan<- T
	// Wait blocks until every worker has returned.
	Wait()
}

// NewDispatcher picks a single queue for one worker and a partitioned queue otherwise.
func NewDispatcher[T effectmodel.Partitionable](
	ctx context.Context,
	config effectmodel.EffectScopeConfig,
	handleFn func(context.Context, T),
) WorkerDispatcher[T] {
	if config.NumWorkers <= 1 {
		return NewSingleQueue(ctx, config.BufferSize, handleFn)
	}
	return NewPartitionedQueue(ctx, config.NumWorkers, config.BufferSize, handleFn)
}

func runWorker[T any](ctx context.Context, ch <-chan T, handleFn func(context.Context, T), ready, done *sync.WaitGroup) {
	defer done.Done()
	ready.Done()
	for {
		select {
		case msg := <-ch:
			handleFn(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// --- single queue ---

type singleQueue[T any] struct {
	effectCh chan T
	done     *sync.WaitGroup
}

func (q singleQueue[T]) GetChannelOf(_ T) chan<- T {
	return q.effectCh
}

func (q singleQueue[T]) Wait() {
	q.done.Wait()
}

func NewSingleQueue[T any](
	ctx context.Context,
	bufferSize int,
	handleFn func(context.Context, T),
) WorkerDispatcher[T] {
	effCh := make(chan T, bufferSize)
	ready, done := &sync.WaitGroup{}, &sync.WaitGroup{}
	ready.Add(1)
	done.Add(1)
	go runWorker(ctx, effCh, handleFn, ready, done)
	ready.Wait()

	return singleQueue[T]{effectCh: effCh, done: done}
}

// --- partitioned queue ---

type partitionedQueue[T effectmodel.Partitionable] struct {
	effectChs []chan T
	done      *sync.WaitGroup
}

func (pq partitionedQueue[T]) GetChannelOf(msg T) chan<- T {
	idx := getIndexByHash(msg, len(pq.effectChs))
	return pq.effectChs[idx]
}

func (pq partitionedQueue[T]) Wait() {
	pq.done.Wait()
}

func NewPartitionedQueue[T effectmodel.Partitionable](
	ctx context.Context,
	numWorkers, bufferSize int,
	handleFn func(context.Context, T),
) WorkerDispatcher[T] {
	channels := make([]chan T, numWorkers)
	ready, done := &sync.WaitGroup{}, &sync.WaitGroup{}
	for i := 0; i < numWorkers; i++ {
		ready.Add(1)
		done.Add(1)
		ch := make(chan T, bufferSize)
		go runWorker(ctx, ch, handleFn, ready, done)
		channels[i] = ch
	}
	ready.Wait()
	return partitionedQueue[T]{effectChs: channels, done: done}
}
