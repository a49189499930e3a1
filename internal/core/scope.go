package core

import "sync"

// Scope collects teardown callbacks and runs them once, in registration
// order, when disposed. Every live handle is owned by exactly one scope.
type Scope struct {
	mu       sync.Mutex
	fns      []func()
	disposed bool
}

// NewScope returns an empty, live scope.
func NewScope() *Scope {
	return &Scope{}
}

// Add registers fn to run on Dispose. A scope that is already disposed runs
// fn immediately.
func (s *Scope) Add(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		fn()
		return
	}
	s.fns = append(s.fns, fn)
	s.mu.Unlock()
}

// Dispose runs the registered callbacks. Later calls do nothing.
func (s *Scope) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Disposed reports whether Dispose has been called.
func (s *Scope) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Child returns a scope disposed together with s.
func (s *Scope) Child() *Scope {
	c := NewScope()
	s.Add(c.Dispose)
	return c
}
