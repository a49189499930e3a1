package core

import (
	"context"
	"sync"

	"resourcesync/pkg/domain"
)

// fakeStore records subscriptions and lets tests deliver snapshots by hand.
type fakeStore struct {
	mu           sync.Mutex
	subs         []*fakeSub
	fetches      int
	fetchResult  []domain.Snapshot
	fetchErr     error
	subscribeErr error
	writes       []fakeWrite
}

type fakeSub struct {
	addr     domain.Address
	listener domain.Listener
	mu       sync.Mutex
	unsubs   int
}

type fakeWrite struct {
	addr   domain.Address
	fields domain.Fields
	opts   domain.WriteOptions
	delete bool
}

func (s *fakeStore) FetchOnce(_ context.Context, _ domain.Address) ([]domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return s.fetchResult, s.fetchErr
}

func (s *fakeStore) Subscribe(addr domain.Address, l domain.Listener) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	sub := &fakeSub{addr: addr, listener: l}
	s.subs = append(s.subs, sub)
	return func() {
		sub.mu.Lock()
		sub.unsubs++
		sub.mu.Unlock()
	}, nil
}

func (s *fakeStore) Write(_ context.Context, addr domain.Address, fields domain.Fields, opts domain.WriteOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, fakeWrite{addr: addr, fields: fields, opts: opts})
	return nil
}

func (s *fakeStore) Delete(_ context.Context, addr domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, fakeWrite{addr: addr, delete: true})
	return nil
}

func (s *fakeStore) subscriptions() []*fakeSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeSub(nil), s.subs...)
}

func (s *fakeStore) last() *fakeSub {
	subs := s.subscriptions()
	if len(subs) == 0 {
		return nil
	}
	return subs[len(subs)-1]
}

func (s *fakeSub) deliver(snaps ...domain.Snapshot) {
	s.listener.OnSnapshot(snaps)
}

func (s *fakeSub) unsubscribed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubs
}

func doc(id string, data domain.Fields) domain.Snapshot {
	return domain.Snapshot{ID: id, Exists: true, Data: data}
}

const (
	pathGuilds     domain.EntityPath = "guilds"
	pathPlayers    domain.EntityPath = "players"
	pathAdventures domain.EntityPath = "adventures"
)

// guildRegistry declares the guild demo: a guild has many players, a player
// belongs to a guild and an adventure lists its party by id.
func guildRegistry() *Registry {
	reg, err := NewRegistry(RegistryConfig{
		Paths: []domain.EntityPath{pathGuilds, pathPlayers, pathAdventures},
		Relations: map[domain.EntityPath]map[string]domain.RelationDefinition{
			pathGuilds: {
				"players": domain.HasMany(pathPlayers, "guildId"),
			},
			pathPlayers: {
				"guild": domain.BelongsTo(pathGuilds, "guildId"),
			},
			pathAdventures: {
				"party":  domain.HasManyIDs(pathPlayers, "partyIds", ""),
				"leader": domain.BelongsTo(pathPlayers, "leaderId"),
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return reg
}

type recordingObserver struct {
	mu         sync.Mutex
	opened     int
	closed     int
	applied    int
	suppressed int
}

func (o *recordingObserver) SubscriptionOpened(domain.EntityPath) {
	o.mu.Lock()
	o.opened++
	o.mu.Unlock()
}

func (o *recordingObserver) SubscriptionClosed(domain.EntityPath) {
	o.mu.Lock()
	o.closed++
	o.mu.Unlock()
}

func (o *recordingObserver) SnapshotApplied(domain.EntityPath, int) {
	o.mu.Lock()
	o.applied++
	o.mu.Unlock()
}

func (o *recordingObserver) SnapshotSuppressed(domain.EntityPath) {
	o.mu.Lock()
	o.suppressed++
	o.mu.Unlock()
}

func (o *recordingObserver) counts() (opened, closed, applied, suppressed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened, o.closed, o.applied, o.suppressed
}
