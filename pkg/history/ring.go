// Package history provides a fixed-capacity ring buffer of timestamped
// entries.
package history

import "time"

// DefaultCapacity is used when a ring is created with a non-positive capacity.
const DefaultCapacity = 64

// Entry is one slot of a Ring.
type Entry[T any] struct {
	Value     T
	Timestamp time.Time // When the entry was recorded
}

// Ring keeps the most recent entries up to a power-of-two capacity. Pushing
// into a full ring evicts the oldest entry; the evicted slot is zeroed before
// it is handed out again, so nothing from the old entry leaks into the new
// one.
//
// Index 0 is the oldest entry and Count()-1 the newest.
//
// A Ring is not safe for concurrent use. It is owned by whichever goroutine
// owns the connection it records for; callers that share one across
// goroutines must add their own locking.
type Ring[T any] struct {
	entries []Entry[T]
	first   int // Index of the oldest entry
	count   int // Current number of entries
	mask    int // len(entries) - 1
}

// NewRing creates a ring holding at least capacity entries, rounded up to a
// power of two.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Ring[T]{
		entries: make([]Entry[T], size),
		mask:    size - 1,
	}
}

// Slot claims the next entry, evicting the oldest if the ring is full, and
// returns it zeroed with its timestamp set. The pointer is valid until the
// slot is reused by a later push.
func (r *Ring[T]) Slot(at time.Time) *Entry[T] {
	var idx int
	if r.count == len(r.entries) {
		idx = r.first
		r.first = (r.first + 1) & r.mask
	} else {
		idx = (r.first + r.count) & r.mask
		r.count++
	}

	e := &r.entries[idx]
	*e = Entry[T]{Timestamp: at}
	return e
}

// Push records value with timestamp at and returns its slot.
func (r *Ring[T]) Push(value T, at time.Time) *Entry[T] {
	e := r.Slot(at)
	e.Value = value
	return e
}

// At returns the i-th oldest entry, or nil if i is out of range.
func (r *Ring[T]) At(i int) *Entry[T] {
	if i < 0 || i >= r.count {
		return nil
	}
	return &r.entries[(r.first+i)&r.mask]
}

// Newest returns the most recent entry, or nil if the ring is empty.
func (r *Ring[T]) Newest() *Entry[T] {
	return r.At(r.count - 1)
}

// Oldest returns the least recent entry, or nil if the ring is empty.
func (r *Ring[T]) Oldest() *Entry[T] {
	return r.At(0)
}

// Count returns the number of entries in the ring.
func (r *Ring[T]) Count() int {
	return r.count
}

// Cap returns the ring's capacity.
func (r *Ring[T]) Cap() int {
	return len(r.entries)
}

// Each calls fn for every entry from oldest to newest until fn returns false.
func (r *Ring[T]) Each(fn func(i int, e *Entry[T]) bool) {
	for i := 0; i < r.count; i++ {
		if !fn(i, &r.entries[(r.first+i)&r.mask]) {
			return
		}
	}
}

// Values returns a copy of the stored values, oldest first.
func (r *Ring[T]) Values() []T {
	out := make([]T, 0, r.count)
	r.Each(func(_ int, e *Entry[T]) bool {
		out = append(out, e.Value)
		return true
	})
	return out
}

// Reset removes and zeroes every entry.
func (r *Ring[T]) Reset() {
	clear(r.entries)
	r.first = 0
	r.count = 0
}
