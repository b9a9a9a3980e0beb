// Package store is a sqlite-backed implementation of the two storage
// collaborators the pipeline depends on: the object store holding uploads and
// generated exams, and the append-only attempts table with its change feed.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/examgen/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("object not found")

// StorageError wraps a failed read or write. A failure is fatal for the
// pipeline step it occurs in; it must never be reported as success.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

type Store struct {
	db      *sql.DB
	changes chan model.ChangeEvent
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, changes: make(chan model.ChangeEvent, changeFeedBuffer)}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS objects (
		bucket TEXT NOT NULL,
		key TEXT NOT NULL,
		data BLOB NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (bucket, key)
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		score INTEGER NOT NULL,
		result TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put writes an object as a single complete row; readers never observe a
// partial write. An existing object under the same key is overwritten
// (last-writer-wins).
func (s *Store) Put(bucket, key string, data []byte, metadata map[string]string) error {
	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return &StorageError{Op: "put", Err: err}
	}
	_, err = s.db.Exec(
		`INSERT INTO objects (bucket, key, data, metadata, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(bucket, key) DO UPDATE SET data = excluded.data,
		     metadata = excluded.metadata, updated_at = excluded.updated_at`,
		bucket, key, data, string(meta), time.Now(),
	)
	if err != nil {
		return &StorageError{Op: "put", Err: err}
	}
	return nil
}

// Get returns an object's content and metadata.
func (s *Store) Get(bucket, key string) ([]byte, map[string]string, error) {
	var data []byte
	var meta string
	err := s.db.QueryRow(
		`SELECT data, metadata FROM objects WHERE bucket = ? AND key = ?`, bucket, key,
	).Scan(&data, &meta)
	if err == sql.ErrNoRows {
		return nil, nil, &StorageError{Op: "get", Err: fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)}
	}
	if err != nil {
		return nil, nil, &StorageError{Op: "get", Err: err}
	}
	metadata := map[string]string{}
	if err := json.Unmarshal([]byte(meta), &metadata); err != nil {
		return nil, nil, &StorageError{Op: "get", Err: err}
	}
	return data, metadata, nil
}

// List returns the keys under the given prefix, prefix stripped, in key
// order. A row whose key equals the prefix itself is excluded.
func (s *Store) List(bucket, prefix string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT key FROM objects WHERE bucket = ? AND key LIKE ? || '%' ORDER BY key`,
		bucket, prefix,
	)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		if key == prefix {
			continue
		}
		keys = append(keys, strings.TrimPrefix(key, prefix))
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return keys, nil
}
