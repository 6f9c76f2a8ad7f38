// Package sqlite is the CodeStore backed by an embedded SQLite database
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS snippets (
    mode TEXT PRIMARY KEY,
    code TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Store persists snippets in the snippets table
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return open(db, path)
}

// OpenMemory creates an in-memory database, mostly for tests
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	// every pooled connection would get its own empty database
	db.SetMaxOpenConns(1)
	return open(db, ":memory:")
}

func open(db *sql.DB, path string) (*Store, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database location
func (s *Store) Path() string { return s.path }

func (s *Store) Load(ctx context.Context, m mode.Mode) (string, bool, error) {
	var code string
	err := s.db.QueryRowContext(ctx, `SELECT code FROM snippets WHERE mode = ?`, string(m)).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading snippet %s: %w", m, err)
	}
	return code, true, nil
}

func (s *Store) Save(ctx context.Context, m mode.Mode, code string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snippets (mode, code, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(mode) DO UPDATE SET code = excluded.code, updated_at = excluded.updated_at`,
		string(m), code, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving snippet %s: %w", m, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, m mode.Mode) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snippets WHERE mode = ?`, string(m))
	if err != nil {
		return fmt.Errorf("deleting snippet %s: %w", m, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrSnippetNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]storage.Snippet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT mode, code, updated_at FROM snippets ORDER BY mode`)
	if err != nil {
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	defer rows.Close()

	var out []storage.Snippet
	for rows.Next() {
		var (
			snip storage.Snippet
			name string
		)
		if err := rows.Scan(&name, &snip.Code, &snip.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning snippet: %w", err)
		}
		snip.Mode = mode.Mode(name)
		out = append(out, snip)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }

var _ storage.CodeStore = (*Store)(nil)
