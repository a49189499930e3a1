package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubDBUpsertsAndDeletesByCompositeKey(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	upsert := "INSERT INTO documents(path,id,seq,payload) VALUES($1,$2,$3,$4) ON CONFLICT(path,id) DO UPDATE SET payload=EXCLUDED.payload"
	for _, v := range []string{"a", "b"} {
		if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "players"}, {Value: "p1"}, {Value: int64(1)}, {Value: []byte(v)}}); err != nil {
			t.Fatalf("ExecContext insert: %v", err)
		}
	}
	if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "guilds"}, {Value: "p1"}, {Value: int64(2)}, {Value: []byte("c")}}); err != nil {
		t.Fatalf("ExecContext insert: %v", err)
	}
	rows := conn.Rows("documents")
	if len(rows) != 2 || string(rows[0]["payload"].([]byte)) != "b" {
		t.Fatalf("expected upsert to replace players/p1, got %v", rows)
	}

	if _, err := conn.ExecContext(ctx, "DELETE FROM documents WHERE path=$1 AND id=$2", []driver.NamedValue{{Value: "players"}, {Value: "p1"}}); err != nil {
		t.Fatalf("ExecContext delete: %v", err)
	}
	if rows := conn.Rows("documents"); len(rows) != 1 || rows[0]["path"] != "guilds" {
		t.Fatalf("expected only guilds/p1 to remain, got %v", rows)
	}

	res, err := conn.QueryContext(ctx, "SELECT path, id FROM documents ORDER BY seq", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = res.Close() }()
	dest := make([]driver.Value, 2)
	if err := res.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "guilds" || dest[1] != "p1" {
		t.Fatalf("unexpected row values: %v", dest)
	}
}
