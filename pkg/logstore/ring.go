package logstore

// Ring is a fixed-size circular buffer. Push is O(1); once full, each push
// overwrites the oldest item.
//
// NOT safe for concurrent use; Store synchronizes access.
type Ring[T any] struct {
	data  []T
	head  int // next write position
	count int
}

// NewRing creates a ring holding at most capacity items
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = MaxLogs
	}
	return &Ring[T]{data: make([]T, capacity)}
}

// Push adds item, evicting the oldest one when full
func (r *Ring[T]) Push(item T) {
	r.data[r.head] = item
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// Len returns the number of stored items
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the capacity
func (r *Ring[T]) Cap() int {
	return len(r.data)
}

// Newest returns a copy of the items, newest first
func (r *Ring[T]) Newest() []T {
	out := make([]T, r.count)
	idx := r.head
	for i := 0; i < r.count; i++ {
		idx--
		if idx < 0 {
			idx = len(r.data) - 1
		}
		out[i] = r.data[idx]
	}
	return out
}
