package core

import (
	"context"
	"errors"
	"testing"

	"resourcesync/pkg/domain"
)

func TestSyncableAppliesDeliveries(t *testing.T) {
	store := &fakeStore{}
	obs := &recordingObserver{}
	changes := 0
	s := NewSyncable(store, domain.Doc(pathPlayers, "p1"), SyncableConfig{
		OnChange: func(*Syncable) { changes++ },
		Observer: obs,
	})
	if s.Active() {
		t.Fatalf("syncable must not subscribe before EnsureFetched")
	}
	if err := s.EnsureFetched(context.Background()); err != nil {
		t.Fatalf("ensure fetched: %v", err)
	}
	if err := s.EnsureFetched(context.Background()); err != nil {
		t.Fatalf("second ensure fetched: %v", err)
	}
	if n := len(store.subscriptions()); n != 1 {
		t.Fatalf("expected one subscription, got %d", n)
	}
	store.last().deliver(doc("p1", domain.Fields{"name": "Ash"}))
	snaps, loaded := s.Value()
	if !loaded || len(snaps) != 1 || changes != 1 {
		t.Fatalf("delivery not applied: %v loaded=%v changes=%d", snaps, loaded, changes)
	}
	if opened, _, applied, _ := obs.counts(); opened != 1 || applied != 1 {
		t.Fatalf("observer counts opened=%d applied=%d", opened, applied)
	}
}

func TestSyncableRetargetTearsDownBeforeSubscribing(t *testing.T) {
	store := &fakeStore{}
	obs := &recordingObserver{}
	s := NewSyncable(store, domain.Doc(pathPlayers, "p1"), SyncableConfig{Observer: obs})
	_ = s.EnsureFetched(context.Background())
	first := store.last()

	if err := s.Retarget(domain.Doc(pathPlayers, "p1")); err != nil {
		t.Fatalf("equal retarget: %v", err)
	}
	if len(store.subscriptions()) != 1 || first.unsubscribed() != 0 {
		t.Fatalf("identity-equal retarget must keep the subscription")
	}

	if err := s.Retarget(domain.Doc(pathPlayers, "p2")); err != nil {
		t.Fatalf("retarget: %v", err)
	}
	subs := store.subscriptions()
	if len(subs) != 2 || first.unsubscribed() != 1 {
		t.Fatalf("expected exactly one teardown and one new subscription, subs=%d unsubs=%d", len(subs), first.unsubscribed())
	}
	if !subs[1].addr.Equal(domain.Doc(pathPlayers, "p2")) {
		t.Fatalf("new subscription on %v", subs[1].addr)
	}

	first.deliver(doc("p1", domain.Fields{"name": "stale"}))
	if _, loaded := s.Value(); loaded {
		t.Fatalf("delivery from the torn down subscription must be dropped")
	}
	if _, _, _, suppressed := obs.counts(); suppressed != 1 {
		t.Fatalf("expected one suppressed delivery, got %d", suppressed)
	}
}

func TestSyncableRetargetWhileIdleDoesNotSubscribe(t *testing.T) {
	store := &fakeStore{}
	s := NewSyncable(store, domain.Doc(pathPlayers, "p1"), SyncableConfig{})
	if err := s.Retarget(domain.Doc(pathPlayers, "p2")); err != nil {
		t.Fatalf("retarget: %v", err)
	}
	if len(store.subscriptions()) != 0 {
		t.Fatalf("idle syncable must not subscribe on retarget")
	}
}

func TestSyncableDisposeIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	obs := &recordingObserver{}
	s := NewSyncable(store, domain.Doc(pathPlayers, "p1"), SyncableConfig{Observer: obs})
	_ = s.EnsureFetched(context.Background())
	sub := store.last()
	s.Dispose()
	s.Dispose()
	if sub.unsubscribed() != 1 {
		t.Fatalf("expected one unsubscribe, got %d", sub.unsubscribed())
	}
	if _, closed, _, _ := obs.counts(); closed != 1 {
		t.Fatalf("expected one close notification, got %d", closed)
	}
	if err := s.EnsureFetched(context.Background()); !errors.Is(err, domain.ErrDesyncedRead) {
		t.Fatalf("expected desynced read after dispose, got %v", err)
	}
	if err := s.Retarget(domain.Doc(pathPlayers, "p2")); !errors.Is(err, domain.ErrDesyncedWrite) {
		t.Fatalf("expected desynced write after dispose, got %v", err)
	}
}

func TestSyncableSubscribeFailure(t *testing.T) {
	boom := errors.New("boom")
	store := &fakeStore{subscribeErr: boom}
	s := NewSyncable(store, domain.Doc(pathPlayers, "p1"), SyncableConfig{})
	if err := s.EnsureFetched(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if s.Active() {
		t.Fatalf("failed subscribe must leave the syncable idle")
	}
}

func TestSyncableErrorsFromStaleGenerationIgnored(t *testing.T) {
	store := &fakeStore{}
	var got []error
	s := NewSyncable(store, domain.Doc(pathPlayers, "p1"), SyncableConfig{
		OnError: func(_ *Syncable, err error) { got = append(got, err) },
	})
	_ = s.EnsureFetched(context.Background())
	first := store.last()
	first.listener.OnError(errors.New("live"))
	_ = s.Retarget(domain.Doc(pathPlayers, "p2"))
	first.listener.OnError(errors.New("stale"))
	if len(got) != 1 || got[0].Error() != "live" {
		t.Fatalf("unexpected errors %v", got)
	}
}

func TestSyncableRefresh(t *testing.T) {
	store := &fakeStore{fetchResult: []domain.Snapshot{doc("p1", domain.Fields{"name": "Ash"})}}
	changes := 0
	s := NewSyncable(store, domain.Doc(pathPlayers, "p1"), SyncableConfig{OnChange: func(*Syncable) { changes++ }})
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !s.Loaded() || changes != 1 {
		t.Fatalf("refresh must apply the read (changes=%d)", changes)
	}
}
