// Package queue provides the ordered, exclusively owned sequence used for a
// vehicle's planned path. It is not safe for concurrent use; the owner
// serializes access.
package queue

// Queue is a generic FIFO with access to both ends.
type Queue[T any] struct {
	items []T
	head  int
}

// New creates a new empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
	}
}

// Push appends items to the back of the queue.
func (q *Queue[T]) Push(items ...T) {
	q.items = append(q.items, items...)
}

// Front returns a pointer to the first item, or nil if the queue is empty.
// The pointer is valid until the next Push or PopFront.
func (q *Queue[T]) Front() *T {
	if q.Empty() {
		return nil
	}
	return &q.items[q.head]
}

// Back returns a pointer to the last item, or nil if the queue is empty.
func (q *Queue[T]) Back() *T {
	if q.Empty() {
		return nil
	}
	return &q.items[len(q.items)-1]
}

// PopFront removes and returns the first item. ok is false if the queue was empty.
func (q *Queue[T]) PopFront() (item T, ok bool) {
	if q.Empty() {
		return item, false
	}
	var zero T
	item = q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 32 && q.head*2 >= len(q.items) {
		// reclaim the consumed prefix
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

// Empty returns true if the queue has no items.
func (q *Queue[T]) Empty() bool {
	return q.head == len(q.items)
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	return len(q.items) - q.head
}

// Each calls fn for every item front to back until fn returns false.
func (q *Queue[T]) Each(fn func(T) bool) {
	for _, it := range q.items[q.head:] {
		if !fn(it) {
			return
		}
	}
}

// Drain removes every item front to back and returns how many were removed.
func (q *Queue[T]) Drain() int {
	n := 0
	for {
		if _, ok := q.PopFront(); !ok {
			return n
		}
		n++
	}
}

// Snapshot returns a copy of the queued items.
func (q *Queue[T]) Snapshot() []T {
	out := make([]T, q.Len())
	copy(out, q.items[q.head:])
	return out
}
