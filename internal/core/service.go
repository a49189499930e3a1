package core

import (
	"context"
	"fmt"
	"time"

	"resourcesync/pkg/domain"
)

// Service binds a document store to a relation registry and hands out
// repositories, live handles and the write path.
type Service struct {
	store    domain.DocumentStore
	registry *Registry
	opts     options
}

// NewService constructs a service over store. A nil registry declares no
// paths.
func NewService(store domain.DocumentStore, registry *Registry, opts ...Option) *Service {
	if registry == nil {
		registry = &Registry{}
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Service{store: store, registry: registry, opts: o}
}

// Store returns the underlying document store.
func (s *Service) Store() domain.DocumentStore {
	return s.store
}

// Registry returns the relation registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Repository returns the repository of a declared path.
func (s *Service) Repository(path domain.EntityPath) (*Repository, error) {
	if !s.registry.HasPath(path) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPath, path)
	}
	return &Repository{svc: s, path: path}, nil
}

// MustRepository is Repository for paths known to be declared.
func (s *Service) MustRepository(path domain.EntityPath) *Repository {
	repo, err := s.Repository(path)
	if err != nil {
		panic(err)
	}
	return repo
}

// WaitIdle blocks until the store has delivered every pending notification,
// for stores that deliver asynchronously.
func (s *Service) WaitIdle(ctx context.Context) error {
	if w, ok := s.store.(interface{ WaitIdle(context.Context) error }); ok {
		return w.WaitIdle(ctx)
	}
	return nil
}

// run wraps a one-shot operation with tracing, metrics and error logging.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.opts.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	s.opts.metrics.Observe(ctx, op, err == nil, time.Since(started))
	span.End(err)
	if err != nil {
		s.opts.logger.Error("operation failed", "op", op, "error", err)
	}
	return err
}
