package core

import (
	"context"
	"fmt"

	"resourcesync/pkg/domain"
)

// Repository reads and syncs the documents of one entity path.
type Repository struct {
	svc  *Service
	path domain.EntityPath
}

// Path returns the entity path served by the repository.
func (r *Repository) Path() domain.EntityPath {
	return r.path
}

// Get reads one document. A missing document yields a nil resource.
func (r *Repository) Get(ctx context.Context, id string) (*Resource, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id for %s", domain.ErrInvalidAddress, r.path)
	}
	view, err := r.fetch(ctx, "get", DocTarget(r.path, id))
	return view.Resource, err
}

// List reads the documents matching every constraint.
func (r *Repository) List(ctx context.Context, constraints ...domain.Constraint) ([]*Resource, error) {
	view, err := r.fetch(ctx, "list", ListTarget(r.path, constraints...))
	return view.Resources, err
}

// Fetch reads an arbitrary target of this path once.
func (r *Repository) Fetch(ctx context.Context, t Target) (View, error) {
	return r.fetch(ctx, "fetch", t)
}

func (r *Repository) fetch(ctx context.Context, op string, t Target) (View, error) {
	var view View
	err := r.svc.run(ctx, string(r.path)+"."+op, func(ctx context.Context) error {
		if err := r.check(t); err != nil {
			return err
		}
		f := NewFetcher(r.svc.store, t.Address)
		if err := f.EnsureFetched(ctx); err != nil {
			return err
		}
		snaps, _ := f.Value()
		view, _, _ = shapeView(r.svc, nil, t, snaps, nil)
		return nil
	})
	return view, err
}

// Sync returns a live handle on document id. With a live existing handle the
// handle is re-targeted in place; a new handle is owned by scope.
func (r *Repository) Sync(scope *Scope, id string, existing *Handle) (*Handle, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id for %s", domain.ErrInvalidAddress, r.path)
	}
	return r.SyncTarget(scope, DocTarget(r.path, id), existing)
}

// SyncList returns a live handle on the documents matching constraints.
func (r *Repository) SyncList(scope *Scope, constraints []domain.Constraint, existing *Handle) (*Handle, error) {
	return r.SyncTarget(scope, ListTarget(r.path, constraints...), existing)
}

// SyncTarget returns a live handle on t. A nil scope leaves disposal to the
// caller. Re-syncing through a disposed handle fails with ErrDesyncedWrite.
func (r *Repository) SyncTarget(scope *Scope, t Target, existing *Handle) (*Handle, error) {
	if err := r.check(t); err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Disposed() {
			return nil, &domain.DesyncedError{Op: "sync", Address: existing.Address(), Err: domain.ErrDesyncedWrite}
		}
		if existing.svc != r.svc || existing.Address().Path != r.path {
			return nil, fmt.Errorf("%w: handle on %s cannot be re-targeted to %s", domain.ErrInvalidAddress, existing.Address().Path, r.path)
		}
		if err := existing.Retarget(t); err != nil {
			return existing, err
		}
		return existing, nil
	}
	h := r.svc.newHandle(t)
	if scope != nil {
		scope.Add(h.Dispose)
	}
	h.start()
	return h, nil
}

func (r *Repository) check(t Target) error {
	if t.Address.Path != r.path {
		return fmt.Errorf("%w: target %s outside %s", domain.ErrInvalidAddress, t.Address, r.path)
	}
	return t.Address.Validate()
}
