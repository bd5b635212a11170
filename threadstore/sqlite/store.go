package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Gurpartap/carecompanion/session"
	"github.com/Gurpartap/carecompanion/threadstore"
)

// Store keeps conversation thread ids in a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("open sqlite: database path is required")
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversation_threads (
		conversation_key TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_threads_updated ON conversation_threads(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Load(ctx context.Context, key string) (session.ThreadID, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return session.NoThread, false, threadstore.ErrKeyRequired
	}

	var threadID string
	err := s.db.QueryRowContext(ctx,
		`SELECT thread_id FROM conversation_threads WHERE conversation_key = ?`, key,
	).Scan(&threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return session.NoThread, false, nil
	}
	if err != nil {
		return session.NoThread, false, fmt.Errorf("load thread for %q: %w", key, err)
	}
	return session.ThreadID(threadID), true, nil
}

func (s *Store) Save(ctx context.Context, key string, threadID session.ThreadID) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return threadstore.ErrKeyRequired
	}
	if threadID == session.NoThread {
		return threadstore.ErrThreadIDRequired
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_threads (conversation_key, thread_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(conversation_key) DO UPDATE SET thread_id = excluded.thread_id, updated_at = excluded.updated_at`,
		key, string(threadID), now, now,
	)
	if err != nil {
		return fmt.Errorf("save thread for %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return threadstore.ErrKeyRequired
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_threads WHERE conversation_key = ?`, key); err != nil {
		return fmt.Errorf("delete thread for %q: %w", key, err)
	}
	return nil
}

// List returns all records, most recently updated first.
func (s *Store) List(ctx context.Context) ([]threadstore.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_key, thread_id, updated_at FROM conversation_threads ORDER BY updated_at DESC, conversation_key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []threadstore.Record
	for rows.Next() {
		var (
			record   threadstore.Record
			threadID string
		)
		if err := rows.Scan(&record.Key, &threadID, &record.UpdatedAt); err != nil {
			return nil, err
		}
		record.ThreadID = session.ThreadID(threadID)
		records = append(records, record)
	}
	return records, rows.Err()
}
