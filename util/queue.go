// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package util

// A FIFO queue as a circular list.  The queue itself points to the
// tail, whose next is the head.

type QueueT[T any] struct {
	value T
	next  *QueueT[T]
	count int
}

func (queue *QueueT[T]) Empty() bool {
	return queue.next == nil
}

func (queue *QueueT[T]) Len() int {
	return queue.count
}

func (queue *QueueT[T]) Enqueue(value T) {
	tail := queue.next
	newTail := &QueueT[T]{value: value}
	if tail == nil {
		newTail.next = newTail
	} else {
		newTail.next = tail.next
		tail.next = newTail
	}
	queue.next = newTail
	queue.count += 1
}

func (queue *QueueT[T]) Dequeue() T {
	if queue.next == nil {
		panic("dequeue on empty queue")
	}
	tail := queue.next
	head := tail.next
	if head == tail {
		queue.next = nil
	} else {
		tail.next = head.next
	}
	queue.count -= 1
	return head.value
}

// Returns the members in dequeue order without removing them.
func (queue *QueueT[T]) Members() []T {
	result := make([]T, 0, queue.count)
	if queue.next == nil {
		return result
	}
	for next := queue.next.next; ; next = next.next {
		result = append(result, next.value)
		if next == queue.next {
			return result
		}
	}
}

func (queue *QueueT[T]) Clear() {
	queue.next = nil
	queue.count = 0
}
