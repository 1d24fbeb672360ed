// Package option is an optional value with copy semantics.
//
// Optional child state lives in parent state as an Option, so snapshots of the
// parent copy the child instead of sharing a pointer with the store.
package option

// Option holds a value of T or nothing. The zero Option is None.
type Option[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Option[T] {
	return Option[T]{value: v, ok: true}
}

func None[T any]() Option[T] {
	return Option[T]{}
}

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.ok
}

func (o Option[T]) IsSome() bool { return o.ok }

func (o Option[T]) IsNone() bool { return !o.ok }

// Ptr points into o for in-place mutation, or is nil when o is None.
func (o *Option[T]) Ptr() *T {
	if o == nil || !o.ok {
		return nil
	}
	return &o.value
}

// OrElse returns the value, or fallback when o is None.
func (o Option[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// Set stores v.
func (o *Option[T]) Set(v T) {
	o.value, o.ok = v, true
}

// Clear empties o.
func (o *Option[T]) Clear() {
	var zero T
	o.value, o.ok = zero, false
}
