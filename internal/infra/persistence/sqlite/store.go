// Package sqlite persists documents to a single SQLite table as JSON payloads
// while serving reads and subscriptions from the in-memory store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"resourcesync/internal/infra/persistence/memory"
	"resourcesync/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.DocumentStore = (*Store)(nil)

// Store writes every document change through to SQLite before the working set
// applies it, so subscribers never observe a change the table rejected.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path and hydrates the working set.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "resourcesync.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		path TEXT NOT NULL,
		id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		payload BLOB NOT NULL,
		PRIMARY KEY (path, id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.SetCommitHook(s.persist)
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT path, id, seq, payload FROM documents ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("select documents: %w", err)
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
			return fmt.Errorf("scan: %w", err)
		}
		if err := json.Unmarshal(payload, &rec.Data); err != nil {
			return fmt.Errorf("decode %s/%s: %w", path, rec.ID, err)
		}
		state[domain.EntityPath(path)] = append(state[domain.EntityPath(path)], rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate documents: %w", err)
	}
	if len(state) > 0 {
		s.ImportState(state)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, c memory.Commit) (retErr error) {
	addr := domain.Doc(c.Path, c.Record.ID)
	var payload []byte
	if c.Exists {
		data, err := json.Marshal(c.Record.Data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", addr, err)
		}
		payload = data
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if !c.Exists {
		if _, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ? AND id = ?`, string(c.Path), c.Record.ID); err != nil {
			return fmt.Errorf("delete %s: %w", addr, err)
		}
	} else if _, err = tx.ExecContext(ctx, `INSERT INTO documents(path,id,seq,payload) VALUES(?,?,?,?) ON CONFLICT(path,id) DO UPDATE SET payload=excluded.payload`, string(c.Path), c.Record.ID, int64(c.Record.Seq), payload); err != nil {
		return fmt.Errorf("upsert %s: %w", addr, err)
	}
	return tx.Commit()
}

// Close stops the working set and closes the database.
func (s *Store) Close() error {
	_ = s.Store.Close()
	return s.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
