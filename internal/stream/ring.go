package stream

import "sync"

// Ring is a fixed-capacity, oldest-evicted-first buffer. It satisfies Backlog.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	start int
	size  int
}

// NewRing allocates a ring holding at most capacity items (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Append adds item, evicting the oldest one when full.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	capacity := len(r.items)
	if r.size < capacity {
		r.items[(r.start+r.size)%capacity] = item
		r.size++
		return
	}
	r.items[r.start] = item
	r.start = (r.start + 1) % capacity
}

// Snapshot returns the items oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.items[(r.start+i)%len(r.items)])
	}
	return out
}

// Len returns how many items are held.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
