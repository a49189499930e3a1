package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"resourcesync/pkg/domain"
)

// Create stores a new document under a generated id and returns the id.
func (s *Service) Create(ctx context.Context, path domain.EntityPath, fields domain.Fields) (string, error) {
	id := uuid.NewString()
	if err := s.CreateWithID(ctx, path, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// CreateWithID stores a document under id, replacing any existing one.
// createdAt and modifiedAt are stamped from the service clock.
func (s *Service) CreateWithID(ctx context.Context, path domain.EntityPath, id string, fields domain.Fields) error {
	return s.run(ctx, string(path)+".create", func(ctx context.Context) error {
		addr, err := s.writeAddress(path, id)
		if err != nil {
			return err
		}
		now := s.opts.clock.Now()
		data := stripReserved(fields)
		data[domain.FieldCreatedAt] = now
		data[domain.FieldModifiedAt] = now
		return s.store.Write(ctx, addr, data, domain.WriteOptions{Overwrite: true})
	})
}

// Update merges fields into the document and refreshes modifiedAt. A missing
// document is created and gets createdAt as well.
func (s *Service) Update(ctx context.Context, path domain.EntityPath, id string, fields domain.Fields) error {
	return s.run(ctx, string(path)+".update", func(ctx context.Context) error {
		addr, err := s.writeAddress(path, id)
		if err != nil {
			return err
		}
		now := s.opts.clock.Now()
		data := stripReserved(fields)
		snaps, err := s.store.FetchOnce(ctx, addr)
		if err != nil {
			return err
		}
		if len(snaps) != 1 || !snaps[0].Exists || snaps[0].Data[domain.FieldCreatedAt] == nil {
			data[domain.FieldCreatedAt] = now
		}
		data[domain.FieldModifiedAt] = now
		return s.store.Write(ctx, addr, data, domain.WriteOptions{})
	})
}

// Overwrite replaces the document's fields. The stored createdAt survives;
// a document written for the first time gets a fresh one.
func (s *Service) Overwrite(ctx context.Context, path domain.EntityPath, id string, fields domain.Fields) error {
	return s.run(ctx, string(path)+".overwrite", func(ctx context.Context) error {
		addr, err := s.writeAddress(path, id)
		if err != nil {
			return err
		}
		now := s.opts.clock.Now()
		data := stripReserved(fields)
		data[domain.FieldCreatedAt] = now
		snaps, err := s.store.FetchOnce(ctx, addr)
		if err != nil {
			return err
		}
		if len(snaps) == 1 && snaps[0].Exists {
			if created, ok := snaps[0].Data[domain.FieldCreatedAt]; ok {
				data[domain.FieldCreatedAt] = created
			}
		}
		data[domain.FieldModifiedAt] = now
		return s.store.Write(ctx, addr, data, domain.WriteOptions{Overwrite: true})
	})
}

// Delete removes the document. Deleting a missing document is not an error.
func (s *Service) Delete(ctx context.Context, path domain.EntityPath, id string) error {
	return s.run(ctx, string(path)+".delete", func(ctx context.Context) error {
		addr, err := s.writeAddress(path, id)
		if err != nil {
			return err
		}
		return s.store.Delete(ctx, addr)
	})
}

func (s *Service) writeAddress(path domain.EntityPath, id string) (domain.Address, error) {
	if !s.registry.HasPath(path) {
		return domain.Address{}, fmt.Errorf("%w: %s", domain.ErrUnknownPath, path)
	}
	if id == "" {
		return domain.Address{}, fmt.Errorf("%w: empty id for %s", domain.ErrInvalidAddress, path)
	}
	return domain.Doc(path, id), nil
}

// stripReserved copies fields without the timestamps owned by the write path.
func stripReserved(fields domain.Fields) domain.Fields {
	out := domain.CloneFields(fields)
	if out == nil {
		out = domain.Fields{}
	}
	delete(out, domain.FieldCreatedAt)
	delete(out, domain.FieldModifiedAt)
	return out
}
