package core

import (
	"fmt"
	"sort"

	"resourcesync/pkg/domain"
)

// RegistryConfig declares the closed set of entity paths and the relations
// owned by each of them.
type RegistryConfig struct {
	Paths     []domain.EntityPath
	Relations map[domain.EntityPath]map[string]domain.RelationDefinition
}

// Registry is the validated, immutable form of a RegistryConfig.
type Registry struct {
	paths     map[domain.EntityPath]struct{}
	relations map[domain.EntityPath]map[string]domain.RelationDefinition
}

// NewRegistry validates cfg. Every relation owner and target must be a
// declared path and every relation must carry a resolver; to-many relations
// also need a default filter.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	r := &Registry{
		paths:     make(map[domain.EntityPath]struct{}, len(cfg.Paths)),
		relations: make(map[domain.EntityPath]map[string]domain.RelationDefinition, len(cfg.Relations)),
	}
	for _, p := range cfg.Paths {
		if p == "" {
			return nil, fmt.Errorf("%w: empty entity path", domain.ErrInvalidAddress)
		}
		r.paths[p] = struct{}{}
	}
	for owner, defs := range cfg.Relations {
		if _, ok := r.paths[owner]; !ok {
			return nil, fmt.Errorf("%w: relation owner %s", domain.ErrUnknownPath, owner)
		}
		table := make(map[string]domain.RelationDefinition, len(defs))
		for name, def := range defs {
			def, err := normalizeRelation(def)
			if err != nil {
				return nil, fmt.Errorf("relation %s.%s: %w", owner, name, err)
			}
			if name == "" {
				return nil, fmt.Errorf("relation on %s: empty name", owner)
			}
			if _, ok := r.paths[def.TargetPath()]; !ok {
				return nil, fmt.Errorf("relation %s.%s: %w: %s", owner, name, domain.ErrUnknownPath, def.TargetPath())
			}
			table[name] = def
		}
		r.relations[owner] = table
	}
	return r, nil
}

func normalizeRelation(def domain.RelationDefinition) (domain.RelationDefinition, error) {
	switch d := def.(type) {
	case *domain.ToOne:
		if d == nil {
			return nil, fmt.Errorf("nil definition")
		}
		return normalizeRelation(*d)
	case *domain.ToMany:
		if d == nil {
			return nil, fmt.Errorf("nil definition")
		}
		return normalizeRelation(*d)
	case domain.ToOne:
		if d.Resolve == nil {
			return nil, fmt.Errorf("missing resolver")
		}
		return d, nil
	case domain.ToMany:
		if d.Resolve == nil {
			return nil, fmt.Errorf("missing resolver")
		}
		if d.DefaultFilter == nil {
			return nil, fmt.Errorf("missing default filter")
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported definition %T", def)
	}
}

// HasPath reports whether path was declared.
func (r *Registry) HasPath(path domain.EntityPath) bool {
	_, ok := r.paths[path]
	return ok
}

// Paths returns the declared paths in sorted order.
func (r *Registry) Paths() []domain.EntityPath {
	out := make([]domain.EntityPath, 0, len(r.paths))
	for p := range r.paths {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Relations lists the relation names owned by path, sorted.
func (r *Registry) Relations(path domain.EntityPath) []string {
	defs := r.relations[path]
	out := make([]string, 0, len(defs))
	for name := range defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Relation looks up a relation definition.
func (r *Registry) Relation(path domain.EntityPath, name string) (domain.RelationDefinition, error) {
	if !r.HasPath(path) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPath, path)
	}
	def, ok := r.relations[path][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", domain.ErrUnknownRelation, path, name)
	}
	return def, nil
}
