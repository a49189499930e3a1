package core

import (
	"context"
	"sync"

	"resourcesync/pkg/domain"
)

// Fetcher reads an address once. Concurrent EnsureFetched calls share a
// single read and later calls return immediately.
type Fetcher struct {
	store domain.DocumentStore

	mu     sync.Mutex
	addr   domain.Address
	value  []domain.Snapshot
	loaded bool
	call   *fetchCall
}

type fetchCall struct {
	addr domain.Address
	done chan struct{}
	err  error
}

// NewFetcher returns an unloaded fetcher for addr.
func NewFetcher(store domain.DocumentStore, addr domain.Address) *Fetcher {
	return &Fetcher{store: store, addr: addr}
}

// Address returns the current target address.
func (f *Fetcher) Address() domain.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addr
}

// Loaded reports whether a read has completed for the current address.
func (f *Fetcher) Loaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

// Value returns the fetched snapshots and whether they are loaded.
func (f *Fetcher) Value() ([]domain.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.loaded
}

// EnsureFetched performs the read unless it already happened.
func (f *Fetcher) EnsureFetched(ctx context.Context) error {
	f.mu.Lock()
	if f.loaded {
		f.mu.Unlock()
		return nil
	}
	if c := f.call; c != nil && c.addr.Equal(f.addr) {
		f.mu.Unlock()
		select {
		case <-c.done:
			return c.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c := &fetchCall{addr: f.addr, done: make(chan struct{})}
	f.call = c
	f.mu.Unlock()

	snaps, err := f.store.FetchOnce(ctx, c.addr)

	f.mu.Lock()
	if f.call == c {
		f.call = nil
	}
	// A retarget during the read makes the result stale.
	if err == nil && f.addr.Equal(c.addr) {
		f.value = snaps
		f.loaded = true
	}
	f.mu.Unlock()
	c.err = err
	close(c.done)
	return err
}

// Retarget points the fetcher at addr. An identity-equal address keeps the
// loaded value.
func (f *Fetcher) Retarget(addr domain.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addr.Equal(addr) {
		return
	}
	f.addr = addr
	f.value = nil
	f.loaded = false
}
