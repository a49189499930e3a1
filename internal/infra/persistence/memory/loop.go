package memory

import (
	"context"
	"sync"
)

// eventLoop runs queued deliveries one at a time on a dedicated goroutine, in
// the order they were enqueued.
type eventLoop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	pending int
	idle    chan struct{}
	closed  bool
}

func newEventLoop() *eventLoop {
	idle := make(chan struct{})
	close(idle)
	l := &eventLoop{idle: idle}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

func (l *eventLoop) enqueue(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	if l.pending == 0 {
		l.idle = make(chan struct{})
	}
	l.pending++
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return true
}

func (l *eventLoop) run() {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()

		l.mu.Lock()
		l.pending--
		if l.pending == 0 {
			close(l.idle)
		}
		l.mu.Unlock()
	}
}

// waitIdle blocks until every queued task, including tasks enqueued by running
// tasks, has completed. Calling it from inside a task deadlocks until ctx ends.
func (l *eventLoop) waitIdle(ctx context.Context) error {
	l.mu.Lock()
	ch := l.idle
	l.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *eventLoop) close() {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
}
