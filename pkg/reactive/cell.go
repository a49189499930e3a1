// Package reactive provides a minimal observable cell used to publish handle
// values and errors to consumers.
package reactive

import (
	"sort"
	"sync"
)

// Cell holds a value and notifies subscribers whenever it is written.
// Subscribers run on the writer's goroutine, in subscription order, after the
// cell's lock has been released.
type Cell[T any] struct {
	mu     sync.RWMutex
	value  T
	nextID uint64
	subs   map[uint64]func(T)
}

// NewCell returns a cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set stores v and notifies subscribers.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	fns := c.snapshotSubs()
	c.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Update applies fn to the current value under the cell's lock. When fn
// reports true the result is stored and subscribers are notified.
func (c *Cell[T]) Update(fn func(old T) (T, bool)) bool {
	c.mu.Lock()
	next, ok := fn(c.value)
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.value = next
	fns := c.snapshotSubs()
	c.mu.Unlock()
	for _, f := range fns {
		f(next)
	}
	return true
}

// Subscribe registers fn for future writes. The returned cancel function is
// idempotent.
func (c *Cell[T]) Subscribe(fn func(T)) (cancel func()) {
	c.mu.Lock()
	if c.subs == nil {
		c.subs = make(map[uint64]func(T))
	}
	c.nextID++
	id := c.nextID
	c.subs[id] = fn
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Subscribers returns the number of registered subscribers.
func (c *Cell[T]) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

func (c *Cell[T]) snapshotSubs() []func(T) {
	if len(c.subs) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(T), len(ids))
	for i, id := range ids {
		out[i] = c.subs[id]
	}
	return out
}
