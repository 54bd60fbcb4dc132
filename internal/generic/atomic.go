package generic

import (
	"sync/atomic"
)

// Atomic is the same as atomic.Pointer but hands out values instead of pointers.
// The zero value holds the zero value of T.
type Atomic[T any] struct {
	ptr atomic.Pointer[T]
}

// NewAtomic creates an Atomic holding the given value.
func NewAtomic[T any](value T) *Atomic[T] {
	a := new(Atomic[T])
	a.Store(value)

	return a
}

func (v *Atomic[T]) Load() T {
	if p := v.ptr.Load(); p != nil {
		return *p
	}

	var zero T

	return zero
}

func (v *Atomic[T]) Store(value T) {
	v.ptr.Store(&value)
}
