// Package syncx provides small generic synchronization helpers.
package syncx

import "sync"

// Guard protects a value with an RWMutex.
type Guard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *Guard[T] {
	return &Guard[T]{value: initial}
}

// Get returns a copy of the value (T should be a value type).
func (g *Guard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Read runs fn under the read lock.
func (g *Guard[T]) Read(fn func(T)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(g.value)
}

// Set replaces the value.
func (g *Guard[T]) Set(v T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

// Apply runs fn on a copy under the write lock and stores the copy only when
// fn succeeds. It returns the value in effect afterwards.
func (g *Guard[T]) Apply(fn func(*T) error) (T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := g.value
	if err := fn(&next); err != nil {
		return g.value, err
	}
	g.value = next
	return next, nil
}
