package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"resourcesync/pkg/domain"
)

// Resource is the presented form of one document: its identity, its
// properties and lazily created relation handles. A resource delivered by a
// handle keeps its identity across snapshots; only the properties are
// replaced.
type Resource struct {
	svc   *Service
	owner *Handle
	path  domain.EntityPath
	id    string

	mu        sync.RWMutex
	props     domain.Fields
	relations map[string]*Handle
}

func newResource(svc *Service, owner *Handle, path domain.EntityPath, id string, data domain.Fields) *Resource {
	return &Resource{
		svc:   svc,
		owner: owner,
		path:  path,
		id:    id,
		props: domain.CloneFields(data),
	}
}

// ID returns the document id.
func (r *Resource) ID() string { return r.id }

// Path returns the entity path.
func (r *Resource) Path() domain.EntityPath { return r.path }

// Properties returns a copy of the current document fields.
func (r *Resource) Properties() domain.Fields {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.CloneFields(r.props)
}

// Get returns one field.
func (r *Resource) Get(field string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.props[field]
	return v, ok
}

// CreatedAt returns the creation timestamp stamped by the write path.
func (r *Resource) CreatedAt() time.Time {
	v, _ := r.Get(domain.FieldCreatedAt)
	return parseTime(v)
}

// ModifiedAt returns the last modification timestamp.
func (r *Resource) ModifiedAt() time.Time {
	v, _ := r.Get(domain.FieldModifiedAt)
	return parseTime(v)
}

func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}
		}
		return parsed
	default:
		return time.Time{}
	}
}

// MarshalJSON renders the properties together with id and resourcePath.
func (r *Resource) MarshalJSON() ([]byte, error) {
	out := r.Properties()
	if out == nil {
		out = domain.Fields{}
	}
	out["id"] = r.id
	out["resourcePath"] = string(r.path)
	return json.Marshal(out)
}

// replace swaps the properties wholesale.
func (r *Resource) replace(data domain.Fields) {
	r.mu.Lock()
	r.props = domain.CloneFields(data)
	r.mu.Unlock()
}

// Relation returns the live handle of the named relation, owned by scope.
// Repeated reads return the same handle while it is alive.
func (r *Resource) Relation(scope *Scope, name string) (*Handle, error) {
	if r.owner != nil && r.owner.Disposed() {
		return nil, &domain.DesyncedError{Op: "relation " + name, Address: r.owner.Address(), Err: domain.ErrDesyncedRead}
	}
	def, err := r.svc.registry.Relation(r.path, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if h, ok := r.relations[name]; ok && !h.Disposed() {
		r.mu.Unlock()
		return h, nil
	}
	target, err := RelationTarget(def, r.id, r.props)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	h := r.svc.newHandle(target)
	if r.relations == nil {
		r.relations = make(map[string]*Handle)
	}
	r.relations[name] = h
	r.mu.Unlock()

	if scope != nil {
		scope.Add(h.Dispose)
	}
	h.start()
	return h, nil
}

// refreshRelations re-targets cached relation handles after the properties
// changed. Handles whose target is unchanged keep their subscription.
func (r *Resource) refreshRelations() {
	r.mu.RLock()
	if len(r.relations) == 0 {
		r.mu.RUnlock()
		return
	}
	type pending struct {
		h *Handle
		t Target
	}
	var work []pending
	for name, h := range r.relations {
		def, err := r.svc.registry.Relation(r.path, name)
		if err != nil {
			continue
		}
		t, err := RelationTarget(def, r.id, r.props)
		if err != nil {
			continue
		}
		work = append(work, pending{h: h, t: t})
	}
	r.mu.RUnlock()
	for _, p := range work {
		if p.h.Disposed() {
			continue
		}
		if err := p.h.Retarget(p.t); err != nil {
			r.svc.opts.logger.Warn("relation retarget failed", "path", string(r.path), "id", r.id, "error", err)
		}
	}
}

func (r *Resource) checkWritable() error {
	if r.owner != nil && r.owner.Disposed() {
		r.svc.opts.logger.Error("write through disposed handle", "path", string(r.path), "id", r.id)
		return &domain.DesyncedError{Op: "write", Address: domain.Doc(r.path, r.id), Err: domain.ErrDesyncedWrite}
	}
	return nil
}

// Update merges fields into the document.
func (r *Resource) Update(ctx context.Context, fields domain.Fields) error {
	if err := r.checkWritable(); err != nil {
		return err
	}
	return r.svc.Update(ctx, r.path, r.id, fields)
}

// Overwrite replaces the document's fields, keeping createdAt.
func (r *Resource) Overwrite(ctx context.Context, fields domain.Fields) error {
	if err := r.checkWritable(); err != nil {
		return err
	}
	return r.svc.Overwrite(ctx, r.path, r.id, fields)
}

// Delete removes the document.
func (r *Resource) Delete(ctx context.Context) error {
	if err := r.checkWritable(); err != nil {
		return err
	}
	return r.svc.Delete(ctx, r.path, r.id)
}
