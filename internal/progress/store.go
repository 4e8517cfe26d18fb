// Package progress remembers how far each document has been listened to.
package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the sqlite driver
)

var (
	// ErrNotFound is returned when a document has no saved position.
	ErrNotFound = errors.New("no saved position")

	// ErrInvalidID is returned for an empty document id.
	ErrInvalidID = errors.New("invalid document id")
)

// Entry is the saved position within one document. BlockIndex is the
// sentence being spoken and CharIndex the byte offset within it.
type Entry struct {
	DocID      string    `json:"doc_id" yaml:"doc_id"`
	BlockIndex int       `json:"block_index" yaml:"block_index"`
	BlockCount int       `json:"block_count" yaml:"block_count"`
	CharIndex  int       `json:"char_index" yaml:"char_index"`
	Title      string    `json:"title,omitempty" yaml:"title,omitempty"`
	Format     string    `json:"format,omitempty" yaml:"format,omitempty"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// Fraction returns how much of the document has been heard, in [0, 1].
func (e Entry) Fraction() float64 {
	if e.BlockCount <= 0 {
		return 0
	}
	return min(float64(e.BlockIndex)/float64(e.BlockCount), 1)
}

// Canonical normalizes a document id so the same file always maps to the
// same key: forward slashes, no trailing slash, lower case.
func Canonical(id string) string {
	id = strings.ReplaceAll(id, `\`, "/")
	id = strings.TrimRight(id, "/")
	return strings.ToLower(id)
}

// CanonicalPath makes path absolute before canonicalizing it.
func CanonicalPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return Canonical(filepath.ToSlash(path))
}

// Store persists entries in SQLite.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open opens (or creates) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS progress (
    doc_id TEXT PRIMARY KEY,
    block_index INTEGER NOT NULL,
    block_count INTEGER NOT NULL,
    char_index INTEGER NOT NULL DEFAULT 0,
    title TEXT,
    format TEXT,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_progress_updated ON progress(updated_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records e under its canonical id, replacing any previous entry.
func (s *Store) Save(ctx context.Context, e Entry) error {
	id := Canonical(e.DocID)
	if id == "" {
		return ErrInvalidID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress(doc_id, block_index, block_count, char_index, title, format, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(doc_id) DO UPDATE SET
		   block_index=excluded.block_index,
		   block_count=excluded.block_count,
		   char_index=excluded.char_index,
		   title=COALESCE(NULLIF(excluded.title, ''), progress.title),
		   format=COALESCE(NULLIF(excluded.format, ''), progress.format),
		   updated_at=excluded.updated_at`,
		id, max(e.BlockIndex, 0), max(e.BlockCount, 0), max(e.CharIndex, 0), e.Title, e.Format, s.clock().UTC())
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Get returns the entry for id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	id = Canonical(id)
	if id == "" {
		return Entry{}, ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT doc_id, block_index, block_count, char_index, COALESCE(title, ''), COALESCE(format, ''), updated_at
		 FROM progress WHERE doc_id = ?`, id)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// All returns every entry, most recently updated first.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, block_index, block_count, char_index, COALESCE(title, ''), COALESCE(format, ''), updated_at
		 FROM progress ORDER BY updated_at DESC, doc_id`)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear forgets the entry for id. Clearing an unknown id is not an error.
func (s *Store) Clear(ctx context.Context, id string) error {
	id = Canonical(id)
	if id == "" {
		return ErrInvalidID
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM progress WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Entry, error) {
	var e Entry
	err := row.Scan(&e.DocID, &e.BlockIndex, &e.BlockCount, &e.CharIndex, &e.Title, &e.Format, &e.UpdatedAt)
	return e, err
}
