package domain

import "context"

// WriteOptions controls how Write applies fields to an existing document.
type WriteOptions struct {
	// Overwrite replaces the stored document; otherwise fields are merged.
	Overwrite bool
}

// Listener receives subscription deliveries. OnSnapshot is invoked with the
// initial state and then after every change; OnError reports stream failures.
type Listener struct {
	OnSnapshot func([]Snapshot)
	OnError    func(error)
}

// DocumentStore is the capability contract of the document database. Writes
// are last-write-wins; ordering is guaranteed per subscription only.
type DocumentStore interface {
	// FetchOnce reads the current state of addr. A document address yields one
	// snapshot whose Exists flag may be false.
	FetchOnce(ctx context.Context, addr Address) ([]Snapshot, error)
	// Subscribe opens a live subscription on addr. The returned function stops
	// deliveries and is safe to call more than once.
	Subscribe(addr Address, l Listener) (unsubscribe func(), err error)
	// Write stores fields at a document address.
	Write(ctx context.Context, addr Address, fields Fields, opts WriteOptions) error
	// Delete removes the document at addr.
	Delete(ctx context.Context, addr Address) error
}
