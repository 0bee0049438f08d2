package state

// Ring is a fixed-capacity FIFO that evicts its oldest entry when full.
// It is not safe for concurrent use.
type Ring[T any] struct {
	items []T
	start int
	size  int
}

// NewRing creates a ring holding at most capacity entries (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest entry if the ring is full.
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = v
		r.size++
		return
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % len(r.items)
}

// Items returns a copy of the entries, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}

// Last returns up to n of the newest entries, oldest first.
func (r *Ring[T]) Last(n int) []T {
	items := r.Items()
	if n >= 0 && n < len(items) {
		return items[len(items)-n:]
	}
	return items
}

// Len reports how many entries the ring holds.
func (r *Ring[T]) Len() int { return r.size }

// Cap reports the maximum number of entries.
func (r *Ring[T]) Cap() int { return len(r.items) }
