package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"resourcesync/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	ctx := context.Background()
	for _, id := range []string{"p2", "p1", "p3"} {
		if err := store.Write(ctx, domain.Doc("players", id), domain.Fields{"guildId": "g1", "name": id}, domain.WriteOptions{}); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}
	if err := store.Write(ctx, domain.Doc("players", "p1"), domain.Fields{"name": "Nova"}, domain.WriteOptions{}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := store.Delete(ctx, domain.Doc("players", "p3")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer func() { _ = reloaded.Close() }()
	snaps, err := reloaded.FetchOnce(ctx, domain.Collection("players", domain.Eq("guildId", "g1")))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if ids := domain.IDs(snaps); len(ids) != 2 || ids[0] != "p2" || ids[1] != "p1" {
		t.Fatalf("expected [p2 p1] after reload, got %v", ids)
	}
	if snaps[1].Data["name"] != "Nova" || snaps[1].Data["guildId"] != "g1" {
		t.Fatalf("expected merged document to persist, got %v", snaps[1].Data)
	}
	if reloaded.Path() != path {
		t.Fatalf("unexpected path %s", reloaded.Path())
	}
}

func TestSQLiteStoreDeliversToSubscribers(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "live.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer func() { _ = store.Close() }()
	got := make(chan []domain.Snapshot, 4)
	unsub, err := store.Subscribe(domain.Doc("players", "p1"), domain.Listener{OnSnapshot: func(s []domain.Snapshot) { got <- s }})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()
	if err := store.Write(context.Background(), domain.Doc("players", "p1"), domain.Fields{"name": "Ash"}, domain.WriteOptions{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snaps := <-got:
			if snaps[0].Exists && snaps[0].Data["name"] == "Ash" {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for delivery")
		}
	}
}

func TestSQLiteStorePersistMarshalError(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "persist.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer func() { _ = store.Close() }()
	err = store.Write(context.Background(), domain.Doc("players", "p1"), domain.Fields{"invalid": func() {}}, domain.WriteOptions{})
	if err == nil {
		t.Fatalf("expected persist marshal error")
	}
	if !strings.Contains(err.Error(), "unsupported type") {
		t.Fatalf("expected unsupported type error, got %v", err)
	}
	if _, ok := store.Document("players", "p1"); ok {
		t.Fatalf("a document that failed to persist must not enter the working set")
	}
}

func TestSQLiteStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "load.db")
	store, err := NewStore(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO documents(path,id,seq,payload) VALUES('players','p1',1,'{bad')`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_ = store.Close()
	if _, err := NewStore(path); err == nil || !strings.Contains(err.Error(), "decode players/p1") {
		t.Fatalf("expected decode error, got %v", err)
	}
}
