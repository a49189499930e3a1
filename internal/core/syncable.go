package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"resourcesync/pkg/domain"
)

// SyncableConfig wires a Syncable to its consumer.
type SyncableConfig struct {
	// OnChange runs after a delivery has been applied, outside any lock.
	OnChange func(*Syncable)
	// OnError runs when the live subscription reports a failure.
	OnError  func(*Syncable, error)
	Logger   Logger
	Observer SubscriptionObserver
}

// Syncable keeps the snapshots of one address current through a live
// subscription. Each subscription it opens is a generation; deliveries from a
// generation that has been torn down are dropped.
type Syncable struct {
	store domain.DocumentStore
	cfg   SyncableConfig

	mu       sync.Mutex
	addr     domain.Address
	value    []domain.Snapshot
	loaded   bool
	gen      *generation
	disposed bool
}

type generation struct {
	addr        domain.Address
	active      atomic.Bool
	mu          sync.Mutex
	opened      bool
	unsubscribe func()
	released    bool
}

// NewSyncable returns an idle syncable for addr. No subscription is opened
// until EnsureFetched.
func NewSyncable(store domain.DocumentStore, addr domain.Address, cfg SyncableConfig) *Syncable {
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	return &Syncable{store: store, cfg: cfg, addr: addr}
}

// Address returns the current target address.
func (s *Syncable) Address() domain.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Loaded reports whether the current generation delivered at least once.
func (s *Syncable) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Value returns the latest applied snapshots.
func (s *Syncable) Value() ([]domain.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.loaded
}

// Active reports whether a subscription is open.
func (s *Syncable) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != nil
}

// Disposed reports whether Dispose has been called.
func (s *Syncable) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// EnsureFetched opens the live subscription if none is open.
func (s *Syncable) EnsureFetched(context.Context) error {
	s.mu.Lock()
	if s.disposed {
		addr := s.addr
		s.mu.Unlock()
		return &domain.DesyncedError{Op: "subscribe", Address: addr, Err: domain.ErrDesyncedRead}
	}
	if s.gen != nil {
		s.mu.Unlock()
		return nil
	}
	gen := &generation{addr: s.addr}
	gen.active.Store(true)
	s.gen = gen
	s.mu.Unlock()
	return s.open(gen)
}

func (s *Syncable) open(gen *generation) error {
	unsub, err := s.store.Subscribe(gen.addr, domain.Listener{
		OnSnapshot: func(snaps []domain.Snapshot) { s.apply(gen, snaps) },
		OnError:    func(err error) { s.fail(gen, err) },
	})
	if err != nil {
		gen.active.Store(false)
		s.mu.Lock()
		if s.gen == gen {
			s.gen = nil
		}
		s.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", gen.addr, err)
	}
	gen.mu.Lock()
	gen.unsubscribe = unsub
	gen.opened = true
	released := gen.released
	gen.mu.Unlock()
	if released {
		// Torn down while Subscribe was running.
		unsub()
		return nil
	}
	s.cfg.Observer.SubscriptionOpened(gen.addr.Path)
	s.cfg.Logger.Debug("subscription opened", "address", gen.addr.String())
	return nil
}

func (s *Syncable) apply(gen *generation, snaps []domain.Snapshot) {
	if !gen.active.Load() {
		s.suppressed(gen)
		return
	}
	s.mu.Lock()
	if s.gen != gen || !gen.active.Load() {
		s.mu.Unlock()
		s.suppressed(gen)
		return
	}
	s.value = snaps
	s.loaded = true
	s.mu.Unlock()
	s.cfg.Observer.SnapshotApplied(gen.addr.Path, len(snaps))
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(s)
	}
}

func (s *Syncable) suppressed(gen *generation) {
	s.cfg.Observer.SnapshotSuppressed(gen.addr.Path)
	s.cfg.Logger.Debug("dropped delivery for torn down subscription", "address", gen.addr.String())
}

func (s *Syncable) fail(gen *generation, err error) {
	if !gen.active.Load() {
		return
	}
	s.cfg.Logger.Warn("subscription error", "address", gen.addr.String(), "error", err)
	if s.cfg.OnError != nil {
		s.cfg.OnError(s, err)
	}
}

// Refresh re-reads the current address once and applies the result as if it
// had been delivered by the subscription.
func (s *Syncable) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		addr := s.addr
		s.mu.Unlock()
		return &domain.DesyncedError{Op: "refresh", Address: addr, Err: domain.ErrDesyncedRead}
	}
	addr := s.addr
	s.mu.Unlock()

	snaps, err := s.store.FetchOnce(ctx, addr)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", addr, err)
	}
	s.mu.Lock()
	if s.disposed || !s.addr.Equal(addr) {
		s.mu.Unlock()
		return nil
	}
	s.value = snaps
	s.loaded = true
	s.mu.Unlock()
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(s)
	}
	return nil
}

// Retarget moves the syncable to addr. An identity-equal address is a no-op;
// otherwise the open subscription, if any, is torn down before the new one is
// opened.
func (s *Syncable) Retarget(addr domain.Address) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return &domain.DesyncedError{Op: "retarget", Address: addr, Err: domain.ErrDesyncedWrite}
	}
	if s.addr.Equal(addr) {
		s.mu.Unlock()
		return nil
	}
	old := s.detachLocked()
	s.addr = addr
	s.value = nil
	s.loaded = false
	var gen *generation
	if old != nil {
		gen = &generation{addr: addr}
		gen.active.Store(true)
		s.gen = gen
	}
	s.mu.Unlock()

	s.release(old)
	if gen == nil {
		return nil
	}
	return s.open(gen)
}

// Dispose tears down the subscription. Later calls do nothing.
func (s *Syncable) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	old := s.detachLocked()
	s.mu.Unlock()
	s.release(old)
}

// detachLocked clears the liveness flag of the current generation before any
// teardown work runs.
func (s *Syncable) detachLocked() *generation {
	gen := s.gen
	s.gen = nil
	if gen != nil {
		gen.active.Store(false)
	}
	return gen
}

func (s *Syncable) release(gen *generation) {
	if gen == nil {
		return
	}
	gen.mu.Lock()
	if gen.released {
		gen.mu.Unlock()
		return
	}
	gen.released = true
	unsub := gen.unsubscribe
	opened := gen.opened
	gen.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	if opened {
		s.cfg.Observer.SubscriptionClosed(gen.addr.Path)
		s.cfg.Logger.Debug("subscription closed", "address", gen.addr.String())
	}
}
