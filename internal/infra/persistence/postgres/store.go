// Package postgres provides a Postgres-backed document store that mirrors the
// in-memory semantics while writing every committed document through to a
// JSONB table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"resourcesync/internal/infra/persistence/memory"
	"resourcesync/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.DocumentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/resourcesync?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists documents to Postgres while reusing the in-memory implementation
// for reads and subscriptions. A change reaches subscribers only after its
// transaction committed.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the documents table exists and hydrates the in-memory store from it.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureDocumentsTable(ctx, db); err != nil {
		return nil, err
	}
	state, err := loadState(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportState(state)
	s := &Store{Store: mem, db: db}
	mem.SetCommitHook(s.persist)
	return s, nil
}

// Close stops deliveries and closes the connection pool.
func (s *Store) Close() error {
	_ = s.Store.Close()
	return s.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func ensureDocumentsTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS documents (
		path TEXT NOT NULL,
		id TEXT NOT NULL,
		seq BIGINT NOT NULL,
		payload JSONB NOT NULL,
		PRIMARY KEY (path, id)
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure documents table: %w", err)
	}
	return nil
}

func loadState(ctx context.Context, db *sql.DB) (memory.State, error) {
	rows, err := db.QueryContext(ctx, `SELECT path, id, seq, payload FROM documents ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	state := memory.State{}
	for rows.Next() {
		var (
			path    string
			rec     memory.Record
			payload []byte
		)
		if err := rows.Scan(&path, &rec.ID, &rec.Seq, &payload); err != nil {
			return nil, fmt.Errorf("scan documents: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, &rec.Data); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", path, rec.ID, err)
		}
		state[domain.EntityPath(path)] = append(state[domain.EntityPath(path)], rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	for path := range state {
		recs := state[path]
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })
	}
	return state, nil
}

func (s *Store) persist(ctx context.Context, c memory.Commit) error {
	addr := domain.Doc(c.Path, c.Record.ID)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if c.Exists {
		data, err := json.Marshal(c.Record.Data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", addr, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents(path,id,seq,payload) VALUES($1,$2,$3,$4) ON CONFLICT(path,id) DO UPDATE SET payload=EXCLUDED.payload`, string(c.Path), c.Record.ID, int64(c.Record.Seq), data); err != nil {
			return fmt.Errorf("upsert %s: %w", addr, err)
		}
	} else if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path=$1 AND id=$2`, string(c.Path), c.Record.ID); err != nil {
		return fmt.Errorf("delete %s: %w", addr, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
