// Package attachment stores binary attachments of documents in a blob store
// and mirrors the attachment names onto the owning document.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"resourcesync/internal/blob"
	"resourcesync/internal/core"
	"resourcesync/pkg/domain"
)

// Field is the document field listing attachment names.
const Field = "attachments"

// ErrInvalidName reports an attachment name that cannot be used as a key segment.
var ErrInvalidName = errors.New("invalid attachment name")

// Service manages attachments of documents owned by a core.Service.
type Service struct {
	docs  *core.Service
	blobs blob.Store
}

// NewService binds a document service to a blob store.
func NewService(docs *core.Service, blobs blob.Store) *Service {
	return &Service{docs: docs, blobs: blobs}
}

// Key returns the blob key of an attachment.
func Key(path domain.EntityPath, id, name string) string {
	return prefix(path, id) + name
}

func prefix(path domain.EntityPath, id string) string {
	return string(path) + "/" + id + "/"
}

func (s *Service) check(ctx context.Context, path domain.EntityPath, id, name string) error {
	if name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	repo, err := s.docs.Repository(path)
	if err != nil {
		return err
	}
	doc, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return domain.ErrNotFound{Path: path, ID: id}
	}
	return nil
}

// Put stores r as attachment name of path/id, replacing an existing one.
func (s *Service) Put(ctx context.Context, path domain.EntityPath, id, name string, r io.Reader, contentType string) (blob.Info, error) {
	if err := s.check(ctx, path, id, name); err != nil {
		return blob.Info{}, err
	}
	info, err := s.blobs.Put(ctx, Key(path, id, name), r, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"path": string(path), "id": id},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("put %s: %w", Key(path, id, name), err)
	}
	return info, s.sync(ctx, path, id)
}

// Get opens an attachment for reading.
func (s *Service) Get(ctx context.Context, path domain.EntityPath, id, name string) (blob.Info, io.ReadCloser, error) {
	return s.blobs.Get(ctx, Key(path, id, name))
}

// Delete removes an attachment and reports whether it existed.
func (s *Service) Delete(ctx context.Context, path domain.EntityPath, id, name string) (bool, error) {
	if err := s.check(ctx, path, id, name); err != nil {
		return false, err
	}
	existed, err := s.blobs.Delete(ctx, Key(path, id, name))
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", Key(path, id, name), err)
	}
	if !existed {
		return false, nil
	}
	return true, s.sync(ctx, path, id)
}

// List returns the attachments of path/id ordered by name.
func (s *Service) List(ctx context.Context, path domain.EntityPath, id string) ([]blob.Info, error) {
	infos, err := s.blobs.List(ctx, prefix(path, id))
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// URL returns a time-limited download URL.
func (s *Service) URL(ctx context.Context, path domain.EntityPath, id, name string, expiry time.Duration) (string, error) {
	return s.blobs.PresignURL(ctx, Key(path, id, name), blob.SignedURLOptions{Method: "GET", Expiry: expiry})
}

// sync writes the current attachment names onto the document.
func (s *Service) sync(ctx context.Context, path domain.EntityPath, id string) error {
	infos, err := s.List(ctx, path, id)
	if err != nil {
		return err
	}
	p := prefix(path, id)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, strings.TrimPrefix(info.Key, p))
	}
	sort.Strings(names)
	return s.docs.Update(ctx, path, id, domain.Fields{Field: names})
}
