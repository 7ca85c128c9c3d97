package nbexportsqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-nbexport/nbexport"
	_ "modernc.org/sqlite"
)

const createCacheTableSQL = `CREATE TABLE IF NOT EXISTS render_cache (
	key TEXT PRIMARY KEY,
	body BLOB NOT NULL,
	applied_theme TEXT NOT NULL DEFAULT '',
	backend TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP
)`

// Store persists render cache entries in a SQLite database.
type Store struct {
	db     *sql.DB
	ownsDB bool

	schemaOnce sync.Once
	schemaErr  error
}

var _ nbexport.CacheStore = (*Store)(nil)

// Open opens (or creates) the database at path and returns a store that owns
// the connection.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nbexport.NewError(nbexport.KindValidation, "cache database path is required", nil)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nbexport.NewError(nbexport.KindInternal, "cache database open failed", err)
	}
	return &Store{db: db, ownsDB: true}, nil
}

// NewStore wraps an existing database handle. The caller keeps ownership and
// closes it.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the entry for key. A missing entry is not an error.
func (s *Store) Get(ctx context.Context, key string) (nbexport.CachedRender, bool, error) {
	if err := s.ensure(ctx); err != nil {
		return nbexport.CachedRender{}, false, err
	}

	var value nbexport.CachedRender
	row := s.db.QueryRowContext(ctx, "SELECT body, applied_theme, backend FROM render_cache WHERE key = ?", key)
	if err := row.Scan(&value.Body, &value.AppliedTheme, &value.Backend); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nbexport.CachedRender{}, false, nil
		}
		return nbexport.CachedRender{}, false, nbexport.NewError(nbexport.KindInternal, "cache select failed", err)
	}
	return value, true, nil
}

// Set stores the entry for key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key string, value nbexport.CachedRender) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO render_cache (key, body, applied_theme, backend, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body = excluded.body,
			applied_theme = excluded.applied_theme,
			backend = excluded.backend,
			created_at = excluded.created_at`,
		key, value.Body, value.AppliedTheme, value.Backend, time.Now().UTC())
	if err != nil {
		return nbexport.NewError(nbexport.KindInternal, "cache upsert failed", err)
	}
	return nil
}

// Delete removes the given keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.ensure(ctx); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM render_cache WHERE key IN (%s)", placeholders(len(keys)))
	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nbexport.NewError(nbexport.KindInternal, "cache delete failed", err)
	}
	return nil
}

// Reset drops every entry.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM render_cache"); err != nil {
		return nbexport.NewError(nbexport.KindInternal, "cache reset failed", err)
	}
	return nil
}

// Len reports the number of stored entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	if err := s.ensure(ctx); err != nil {
		return 0, err
	}
	var n int
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM render_cache")
	if err := row.Scan(&n); err != nil {
		return 0, nbexport.NewError(nbexport.KindInternal, "cache count failed", err)
	}
	return n, nil
}

// Close releases the database handle when the store owns it.
func (s *Store) Close() error {
	if s == nil || !s.ownsDB || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensure(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nbexport.NewError(nbexport.KindNotImpl, "cache database not configured", nil)
	}
	s.schemaOnce.Do(func() {
		if _, err := s.db.ExecContext(ctx, createCacheTableSQL); err != nil {
			s.schemaErr = nbexport.NewError(nbexport.KindInternal, "cache schema failed", err)
		}
	})
	return s.schemaErr
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
