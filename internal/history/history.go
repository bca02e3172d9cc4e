// Package history keeps a local log of finished dictations in SQLite.
// Purely additive: a broken history store degrades to logging and never
// blocks a paste.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT    NOT NULL,
	audio_ms   INTEGER NOT NULL,
	backend    TEXT    NOT NULL,
	text       TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at);
`

// Entry is one finished dictation.
type Entry struct {
	ID        int64
	CreatedAt time.Time
	AudioMs   int64
	Backend   string
	Text      string
}

// Store is an append-only transcript log.
type Store struct {
	db *sql.DB
}

// Open creates or opens the store at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append records one dictation.
func (s *Store) Append(e Entry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO transcripts (created_at, audio_ms, backend, text) VALUES (?, ?, ?, ?)`,
		createdAt.UTC().Format(time.RFC3339Nano), e.AudioMs, e.Backend, e.Text,
	)
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, audio_ms, backend, text FROM transcripts ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &createdAt, &e.AudioMs, &e.Backend, &e.Text); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
