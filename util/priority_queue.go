// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package util

import (
	"container/heap"
)

// A priority queue that holds each element at most once, which makes
// it a worklist for data-flow problems.  Dequeue() returns the least
// element according to 'less'.

type PriorityQueueT[T comparable] struct {
	heap    heapT[T]
	members SetT[T]
}

func MakePriorityQueue[T comparable](less func(x T, y T) bool) *PriorityQueueT[T] {
	return &PriorityQueueT[T]{heap: heapT[T]{less: less}, members: NewSet[T]()}
}

func (queue *PriorityQueueT[T]) Len() int   { return len(queue.heap.elements) }
func (queue *PriorityQueueT[T]) Empty() bool { return len(queue.heap.elements) == 0 }

func (queue *PriorityQueueT[T]) Contains(x T) bool {
	return queue.members.Contains(x)
}

// Returns false, and does nothing, if 'x' is already queued.
func (queue *PriorityQueueT[T]) Enqueue(x T) bool {
	if queue.members.Add(x) == 0 {
		return false
	}
	heap.Push(&queue.heap, x)
	return true
}

func (queue *PriorityQueueT[T]) Dequeue() T {
	x := heap.Pop(&queue.heap).(T)
	queue.members.Remove(x)
	return x
}

// The container/heap interface, kept out of the queue's method set.

type heapT[T any] struct {
	elements []T
	less     func(x T, y T) bool
}

func (h heapT[T]) Len() int           { return len(h.elements) }
func (h heapT[T]) Less(i, j int) bool { return h.less(h.elements[i], h.elements[j]) }
func (h heapT[T]) Swap(i, j int)      { h.elements[i], h.elements[j] = h.elements[j], h.elements[i] }

func (h *heapT[T]) Push(x any) {
	h.elements = append(h.elements, x.(T))
}

func (h *heapT[T]) Pop() any {
	last := len(h.elements) - 1
	x := h.elements[last]
	var zero T
	h.elements[last] = zero
	h.elements = h.elements[:last]
	return x
}
