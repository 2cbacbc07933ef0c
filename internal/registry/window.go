package registry

import (
	"sync"

	"pidgate/internal/merkle"
)

const defaultWindowSize = 8

// Window is a bounded ring of the most recent signed roots of one registry.
// When full the oldest root is dropped, which bounds how stale a presented
// root may be.
type Window struct {
	mu       sync.RWMutex
	roots    []SignedRoot
	head     int // next write position
	count    int
	capacity int
	evicted  int64
}

// NewWindow creates a window holding up to capacity roots.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = defaultWindowSize
	}
	return &Window{
		roots:    make([]SignedRoot, capacity),
		capacity: capacity,
	}
}

// Push records a newly published root, evicting the oldest if full.
func (w *Window) Push(r SignedRoot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count >= w.capacity {
		w.count--
		w.evicted++
	}
	w.roots[w.head] = r
	w.head = (w.head + 1) % w.capacity
	w.count++
}

// Find returns the windowed root equal to root, if any.
func (w *Window) Find(root merkle.Hash) (SignedRoot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for i := 0; i < w.count; i++ {
		r := w.roots[w.index(i)]
		if r.Root == root {
			return r, true
		}
	}
	return SignedRoot{}, false
}

// Roots returns the windowed roots, newest first.
func (w *Window) Roots() []SignedRoot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]SignedRoot, 0, w.count)
	for i := 0; i < w.count; i++ {
		out = append(out, w.roots[w.index(i)])
	}
	return out
}

// Latest returns the newest root.
func (w *Window) Latest() (SignedRoot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.count == 0 {
		return SignedRoot{}, false
	}
	return w.roots[w.index(0)], true
}

// Len returns how many roots are currently accepted.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.count
}

// Capacity returns the configured window size.
func (w *Window) Capacity() int { return w.capacity }

// Evicted returns how many roots have aged out.
func (w *Window) Evicted() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.evicted
}

// index maps age (0 = newest) to a slot.
func (w *Window) index(age int) int {
	return (w.head - 1 - age + 2*w.capacity) % w.capacity
}
