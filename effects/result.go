package effects

import "errors"

// ErrEffectPanicked wraps a panic recovered from effect work.
var ErrEffectPanicked = errors.New("effect work panicked")

// Result carries the outcome of a Task back into an action.
type Result[T any] struct {
	Value T
	Err   error
}

func ResultFrom[T any](v T, err error) Result[T] {
	return Result[T]{Value: v, Err: err}
}

func (r Result[T]) Failed() bool {
	return r.Err != nil
}
