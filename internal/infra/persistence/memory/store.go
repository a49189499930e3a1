// Package memory provides an in-process document database used for tests,
// ephemeral environments and as the working set of the persistent drivers.
// Subscriptions are delivered on a single event loop in commit order.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"resourcesync/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the document store interface.
var _ domain.DocumentStore = (*Store)(nil)

// Record is one exported document. Seq preserves the default collection order.
type Record struct {
	ID   string        `json:"id"`
	Seq  uint64        `json:"seq"`
	Data domain.Fields `json:"data"`
}

// State captures a point-in-time clone of the store contents keyed by entity path.
type State map[domain.EntityPath][]Record

type document struct {
	seq  uint64
	data domain.Fields
}

type subscription struct {
	addr   domain.Address
	l      domain.Listener
	active atomic.Bool
}

// Commit is one document change about to be applied. Exists is false when the
// change deletes the document.
type Commit struct {
	Path   domain.EntityPath
	Record Record
	Exists bool
}

// CommitHook runs under the store lock once a change has been computed and
// before it is applied or delivered. A non-nil error aborts the change.
type CommitHook func(ctx context.Context, c Commit) error

// Store is an in-memory document database.
type Store struct {
	mu      sync.RWMutex
	docs    map[domain.EntityPath]map[string]document
	seq     uint64
	subs    map[uint64]*subscription
	nextSub uint64
	closed  bool
	loop    *eventLoop
	hook    CommitHook
}

// NewStore constructs an empty store and starts its delivery loop.
func NewStore() *Store {
	return &Store{
		docs: make(map[domain.EntityPath]map[string]document),
		subs: make(map[uint64]*subscription),
		loop: newEventLoop(),
	}
}

// FetchOnce returns the current state of addr.
func (s *Store) FetchOnce(ctx context.Context, addr domain.Address) ([]domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, domain.ErrStoreClosed
	}
	return s.queryLocked(addr), nil
}

// Subscribe registers l for addr. The initial state is queued immediately;
// later deliveries follow every commit that touches the address.
func (s *Store) Subscribe(addr domain.Address, l domain.Listener) (func(), error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if l.OnSnapshot == nil {
		return nil, errors.New("memory: subscribe requires an OnSnapshot callback")
	}
	sub := &subscription{addr: addr, l: l}
	sub.active.Store(true)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.ErrStoreClosed
	}
	s.nextSub++
	id := s.nextSub
	s.subs[id] = sub
	s.deliverLocked(sub, s.queryLocked(addr))
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}, nil
}

// SetCommitHook installs hook for every later Write and Delete. ImportState
// bypasses it.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

func (s *Store) commitLocked(ctx context.Context, c Commit) error {
	if s.hook == nil {
		return nil
	}
	c.Record.Data = domain.CloneFields(c.Record.Data)
	return s.hook(ctx, c)
}

// Write stores fields at a document address, merging into an existing
// document unless opts.Overwrite is set.
func (s *Store) Write(ctx context.Context, addr domain.Address, fields domain.Fields, opts domain.WriteOptions) error {
	if err := documentAddress(ctx, addr); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	coll := s.collectionLocked(addr.Path)
	prev, exists := coll[addr.ID]
	next := document{seq: prev.seq}
	if !exists {
		next.seq = s.seq + 1
	}
	if exists && !opts.Overwrite {
		next.data = domain.CloneFields(prev.data)
		for k, v := range domain.CloneFields(fields) {
			next.data[k] = v
		}
	} else {
		next.data = domain.CloneFields(fields)
		if next.data == nil {
			next.data = domain.Fields{}
		}
	}
	if err := s.commitLocked(ctx, Commit{Path: addr.Path, Record: Record{ID: addr.ID, Seq: next.seq, Data: next.data}, Exists: true}); err != nil {
		return err
	}
	if !exists {
		s.seq = next.seq
	}
	coll[addr.ID] = next
	var before domain.Fields
	if exists {
		before = prev.data
	}
	s.notifyLocked(addr.Path, addr.ID, before, next.data)
	return nil
}

// Delete removes the document at addr. Deleting a missing document is a no-op.
func (s *Store) Delete(ctx context.Context, addr domain.Address) error {
	if err := documentAddress(ctx, addr); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	coll := s.docs[addr.Path]
	prev, ok := coll[addr.ID]
	if !ok {
		return nil
	}
	if err := s.commitLocked(ctx, Commit{Path: addr.Path, Record: Record{ID: addr.ID, Seq: prev.seq}}); err != nil {
		return err
	}
	delete(coll, addr.ID)
	s.notifyLocked(addr.Path, addr.ID, prev.data, nil)
	return nil
}

// Document returns the stored record for path/id.
func (s *Store) Document(path domain.EntityPath, id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[path][id]
	if !ok {
		return Record{}, false
	}
	return Record{ID: id, Seq: d.seq, Data: domain.CloneFields(d.data)}, true
}

// Subscriptions reports the number of live subscriptions.
func (s *Store) Subscriptions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// WaitIdle blocks until every queued delivery has run.
func (s *Store) WaitIdle(ctx context.Context) error {
	return s.loop.waitIdle(ctx)
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(State, len(s.docs))
	for path, coll := range s.docs {
		records := make([]Record, 0, len(coll))
		for id, d := range coll {
			records = append(records, Record{ID: id, Seq: d.seq, Data: domain.CloneFields(d.data)})
		}
		sortRecords(records)
		out[path] = records
	}
	return out
}

// ImportState replaces the store state with the provided snapshot and
// redelivers every live subscription.
func (s *Store) ImportState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[domain.EntityPath]map[string]document, len(state))
	s.seq = 0
	for path, records := range state {
		coll := make(map[string]document, len(records))
		for _, r := range records {
			coll[r.ID] = document{seq: r.Seq, data: domain.CloneFields(r.Data)}
			if r.Seq > s.seq {
				s.seq = r.Seq
			}
		}
		s.docs[path] = coll
	}
	for _, id := range s.subIDsLocked() {
		sub := s.subs[id]
		s.deliverLocked(sub, s.queryLocked(sub.addr))
	}
}

// Close stops deliveries and rejects further calls.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, sub := range s.subs {
		sub.active.Store(false)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	s.loop.close()
	return nil
}

func documentAddress(ctx context.Context, addr domain.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := addr.Validate(); err != nil {
		return err
	}
	if !addr.IsDocument() {
		return fmt.Errorf("%w: %s is not a document address", domain.ErrInvalidAddress, addr)
	}
	return nil
}

func (s *Store) collectionLocked(path domain.EntityPath) map[string]document {
	coll, ok := s.docs[path]
	if !ok {
		coll = make(map[string]document)
		s.docs[path] = coll
	}
	return coll
}

func (s *Store) queryLocked(addr domain.Address) []domain.Snapshot {
	coll := s.docs[addr.Path]
	if addr.IsDocument() {
		d, ok := coll[addr.ID]
		snap := domain.Snapshot{ID: addr.ID, Exists: ok}
		if ok {
			snap.Data = domain.CloneFields(d.data)
		}
		return []domain.Snapshot{snap}
	}
	records := make([]Record, 0)
	for id, d := range coll {
		if addr.Matches(id, d.data) {
			records = append(records, Record{ID: id, Seq: d.seq, Data: d.data})
		}
	}
	sortRecords(records)
	out := make([]domain.Snapshot, len(records))
	for i, r := range records {
		out[i] = domain.Snapshot{ID: r.ID, Exists: true, Data: domain.CloneFields(r.Data)}
	}
	return out
}

// notifyLocked queues a fresh result for every subscription whose address
// covered the document before or after the change.
func (s *Store) notifyLocked(path domain.EntityPath, id string, before, after domain.Fields) {
	for _, subID := range s.subIDsLocked() {
		sub := s.subs[subID]
		if sub.addr.Path != path {
			continue
		}
		var touched bool
		if sub.addr.IsDocument() {
			touched = sub.addr.ID == id
		} else {
			touched = (before != nil && sub.addr.Matches(id, before)) || (after != nil && sub.addr.Matches(id, after))
		}
		if touched {
			s.deliverLocked(sub, s.queryLocked(sub.addr))
		}
	}
}

func (s *Store) deliverLocked(sub *subscription, snaps []domain.Snapshot) {
	s.loop.enqueue(func() {
		if sub.active.Load() {
			sub.l.OnSnapshot(snaps)
		}
	})
}

func (s *Store) subIDsLocked() []uint64 {
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Seq != records[j].Seq {
			return records[i].Seq < records[j].Seq
		}
		return records[i].ID < records[j].ID
	})
}
