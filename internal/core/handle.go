package core

import (
	"context"
	"sync"

	"resourcesync/pkg/domain"
	"resourcesync/pkg/reactive"
)

// View is the value published by a handle.
type View struct {
	Target Target
	Loaded bool
	// Resource is set for document targets and single collection targets.
	Resource  *Resource
	Resources []*Resource
	// Version increases with every publication of the owning handle.
	Version uint64
}

// Handle is a live, disposable view over a target. It owns one Syncable at a
// time; re-targeting replaces the Syncable but keeps the handle.
type Handle struct {
	svc *Service

	mu        sync.Mutex
	target    Target
	sync      *Syncable
	disposed  bool
	version   uint64
	current   View
	resources map[string]*Resource

	value *reactive.Cell[View]
	errs  *reactive.Cell[error]
}

func (s *Service) newHandle(t Target) *Handle {
	h := &Handle{
		svc:     s,
		target:  t,
		current: View{Target: t},
		value:   reactive.NewCell(View{Target: t}),
		errs:    reactive.NewCell[error](nil),
	}
	h.sync = h.newSyncable(t)
	return h
}

func (h *Handle) newSyncable(t Target) *Syncable {
	return NewSyncable(h.svc.store, t.Address, SyncableConfig{
		OnChange: h.onChange,
		OnError:  h.onError,
		Logger:   h.svc.opts.logger,
		Observer: h.svc.opts.observer,
	})
}

// start opens the subscription of the current syncable. Failures are
// published on the error cell.
func (h *Handle) start() {
	h.mu.Lock()
	s := h.sync
	h.mu.Unlock()
	if err := s.EnsureFetched(context.Background()); err != nil {
		h.onError(s, err)
	}
}

// Target returns the current target.
func (h *Handle) Target() Target {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target
}

// Address returns the address of the current target.
func (h *Handle) Address() domain.Address {
	return h.Target().Address
}

// Disposed reports whether the handle has been disposed.
func (h *Handle) Disposed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}

// Loaded reports whether the current target has delivered. A disposed handle
// keeps its last answer.
func (h *Handle) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current.Loaded
}

// View returns the current value.
func (h *Handle) View() (View, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return View{}, h.desyncedLocked("read", domain.ErrDesyncedRead)
	}
	return h.current, nil
}

// Resource returns the single presented resource, nil while unloaded or
// when the document does not exist.
func (h *Handle) Resource() (*Resource, error) {
	v, err := h.View()
	return v.Resource, err
}

// Resources returns the presented resources in order.
func (h *Handle) Resources() ([]*Resource, error) {
	v, err := h.View()
	if err != nil {
		return nil, err
	}
	return append([]*Resource(nil), v.Resources...), nil
}

// Err returns the last subscription error. It is cleared when the handle is
// re-targeted and when a later delivery is applied.
func (h *Handle) Err() error {
	return h.errs.Get()
}

// Errors exposes subscription errors as an observable cell.
func (h *Handle) Errors() *reactive.Cell[error] {
	return h.errs
}

// Subscribe registers fn for every published view.
func (h *Handle) Subscribe(fn func(View)) (cancel func()) {
	return h.value.Subscribe(fn)
}

// Refresh re-reads the target once outside the subscription.
func (h *Handle) Refresh(ctx context.Context) error {
	h.mu.Lock()
	if h.disposed {
		err := h.desyncedLocked("refresh", domain.ErrDesyncedRead)
		h.mu.Unlock()
		return err
	}
	s := h.sync
	h.mu.Unlock()
	return s.Refresh(ctx)
}

// Retarget binds the handle to t. An equal target keeps the current
// subscription; otherwise the old syncable is disposed before a new one is
// subscribed.
func (h *Handle) Retarget(t Target) error {
	if err := t.Address.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	if h.disposed {
		err := h.desyncedLocked("retarget", domain.ErrDesyncedWrite)
		h.mu.Unlock()
		return err
	}
	if h.target.Equal(t) {
		h.target = t
		h.mu.Unlock()
		return nil
	}
	old := h.sync
	h.target = t
	h.sync = h.newSyncable(t)
	h.resources = nil
	h.version++
	view := View{Target: t, Version: h.version}
	h.current = view
	s := h.sync
	h.mu.Unlock()

	old.Dispose()
	h.publish(view)
	h.clearErr()
	if err := s.EnsureFetched(context.Background()); err != nil {
		h.onError(s, err)
		return err
	}
	return nil
}

// Dispose tears down the subscription and freezes the value. Later calls do
// nothing.
func (h *Handle) Dispose() {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	h.disposed = true
	s := h.sync
	h.mu.Unlock()
	s.Dispose()
}

func (h *Handle) desyncedLocked(op string, kind error) error {
	err := &domain.DesyncedError{Op: op, Address: h.target.Address, Err: kind}
	h.svc.opts.logger.Error("access through disposed handle", "op", op, "address", h.target.Address.String())
	return err
}

func (h *Handle) onChange(s *Syncable) {
	h.mu.Lock()
	if h.disposed || h.sync != s {
		h.mu.Unlock()
		h.svc.opts.observer.SnapshotSuppressed(s.Address().Path)
		return
	}
	snaps, loaded := s.Value()
	if !loaded {
		h.mu.Unlock()
		return
	}
	view, next, reused := shapeView(h.svc, h, h.target, snaps, h.resources)
	h.resources = next
	h.version++
	view.Version = h.version
	h.current = view
	h.mu.Unlock()

	h.publish(view)
	h.clearErr()
	for _, r := range reused {
		r.refreshRelations()
	}
}

func (h *Handle) onError(s *Syncable, err error) {
	h.mu.Lock()
	stale := h.disposed || h.sync != s
	h.mu.Unlock()
	if stale {
		return
	}
	h.errs.Set(err)
}

// clearErr drops the last error once the handle has moved on or the
// subscription delivered again.
func (h *Handle) clearErr() {
	h.errs.Update(func(old error) (error, bool) {
		return nil, old != nil
	})
}

func (h *Handle) publish(v View) {
	h.value.Update(func(old View) (View, bool) {
		return v, v.Version > old.Version
	})
}

// shapeView turns snapshots into a view. Resources in prev are reused by id
// with their properties replaced; reused lists them for relation refresh.
func shapeView(svc *Service, owner *Handle, t Target, snaps []domain.Snapshot, prev map[string]*Resource) (view View, next map[string]*Resource, reused []*Resource) {
	next = make(map[string]*Resource, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists {
			continue
		}
		r, ok := prev[snap.ID]
		if ok {
			r.replace(snap.Data)
			reused = append(reused, r)
		} else {
			r = newResource(svc, owner, t.Address.Path, snap.ID, snap.Data)
		}
		next[snap.ID] = r
	}

	view = View{Target: t, Loaded: true}
	if t.Address.IsDocument() {
		if r := next[t.Address.ID]; r != nil {
			view.Resource = r
			view.Resources = []*Resource{r}
		}
		return view, next, reused
	}
	for _, id := range ResolveIDs(t.Selector, domain.IDs(snaps)) {
		if r := next[id]; r != nil {
			view.Resources = append(view.Resources, r)
		}
	}
	if t.Single && len(view.Resources) > 0 {
		view.Resource = view.Resources[0]
	}
	return view, next, reused
}
