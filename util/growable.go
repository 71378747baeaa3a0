// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package util

// A slice indexed by small integers that grows on demand.  Slots that
// have never been set read as 'fill'.

type GrowableT[T any] struct {
	elts []T
	fill T
}

func NewGrowable[T any](fill T) *GrowableT[T] {
	return &GrowableT[T]{fill: fill}
}

func (growable *GrowableT[T]) Len() int {
	return len(growable.elts)
}

func (growable *GrowableT[T]) Get(i int) T {
	if i < 0 {
		panic("negative index")
	}
	if len(growable.elts) <= i {
		return growable.fill
	}
	return growable.elts[i]
}

func (growable *GrowableT[T]) Set(i int, value T) {
	growable.Grow(i + 1)
	growable.elts[i] = value
}

// Makes sure that there are at least 'n' slots.
func (growable *GrowableT[T]) Grow(n int) {
	for len(growable.elts) < n {
		growable.elts = append(growable.elts, growable.fill)
	}
}

// Sets every slot back to the fill value.
func (growable *GrowableT[T]) Reset() {
	for i := range growable.elts {
		growable.elts[i] = growable.fill
	}
}

// The backing slice; it is only valid until the next Set or Grow.
func (growable *GrowableT[T]) Slice() []T {
	return growable.elts
}
