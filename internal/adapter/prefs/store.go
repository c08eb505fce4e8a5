// Package prefs persists the consumer's durable preferences (selected scope
// and display theme) in a small SQLite key/value table.
package prefs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/sitaware/internal/domain"
)

// ErrNotFound is returned when a preference has never been saved.
var ErrNotFound = errors.New("preference not found")

const (
	keyScope = "sitaware-selected-states"
	keyTheme = "sitaware-theme"
)

// Store is a SQLite-backed preference store, safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
// ":memory:" gives a private in-memory database that lives until Close.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open preferences database: %w", err)
	}
	// In-memory databases are per-connection; keep exactly one alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping preferences database: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS preferences (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create preferences table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadScope returns the saved scope, or ErrNotFound.
func (s *Store) LoadScope(ctx context.Context) (domain.Scope, error) {
	raw, err := s.get(ctx, keyScope)
	if err != nil {
		return domain.Scope{}, err
	}
	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		return domain.Scope{}, fmt.Errorf("decode saved scope: %w", err)
	}
	return domain.ParseScope(codes)
}

// SaveScope persists the scope as a JSON array of codes.
func (s *Store) SaveScope(ctx context.Context, scope domain.Scope) error {
	b, err := json.Marshal(scope)
	if err != nil {
		return fmt.Errorf("encode scope: %w", err)
	}
	return s.put(ctx, keyScope, string(b))
}

// LoadTheme returns the saved theme, or ErrNotFound.
func (s *Store) LoadTheme(ctx context.Context) (domain.Theme, error) {
	raw, err := s.get(ctx, keyTheme)
	if err != nil {
		return "", err
	}
	return domain.ParseTheme(raw)
}

// SaveTheme persists the theme.
func (s *Store) SaveTheme(ctx context.Context, theme domain.Theme) error {
	if _, err := domain.ParseTheme(string(theme)); err != nil {
		return err
	}
	return s.put(ctx, keyTheme, string(theme))
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("read preference %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`, key, value)
	if err != nil {
		return fmt.Errorf("write preference %s: %w", key, err)
	}
	return nil
}
