package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the engine and its stores.
var (
	// ErrDesyncedRead is returned when reading a value from a disposed handle.
	ErrDesyncedRead = errors.New("desynced-read")
	// ErrDesyncedWrite is returned when writing through a reference whose owning handle was disposed.
	ErrDesyncedWrite = errors.New("desynced-write")
	// ErrInvalidAddress reports a malformed target address.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrUnknownPath reports an entity path absent from the configuration.
	ErrUnknownPath = errors.New("unknown entity path")
	// ErrUnknownRelation reports a relation name absent from the registry.
	ErrUnknownRelation = errors.New("unknown relation")
	// ErrStoreClosed is returned by stores after Close.
	ErrStoreClosed = errors.New("store closed")
)

// DesyncedError carries the address of the disposed handle that was accessed.
type DesyncedError struct {
	Op      string
	Address Address
	Err     error
}

func (e *DesyncedError) Error() string {
	return fmt.Sprintf("%s: %s on disposed handle %s", e.Err, e.Op, e.Address)
}

func (e *DesyncedError) Unwrap() error {
	return e.Err
}

// ErrNotFound is returned when a document required by an operation does not exist.
type ErrNotFound struct {
	Path EntityPath
	ID   string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Path, e.ID)
}
