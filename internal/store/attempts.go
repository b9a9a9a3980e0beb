package store

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pavelanni/examgen/internal/model"
)

// changeFeedBuffer bounds how many unconsumed change events the feed holds.
const changeFeedBuffer = 64

// PutAttempt persists a completed attempt as one append-only record and, once
// the write has committed, emits its change event to the feed. Records are
// never mutated afterwards.
func (s *Store) PutAttempt(a model.AttemptResult) error {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return &StorageError{Op: "put attempt", Err: err}
	}
	_, err = s.db.Exec(
		`INSERT INTO attempts (email, score, result, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.Email, a.Score, a.Result, string(details), time.Now(),
	)
	if err != nil {
		return &StorageError{Op: "put attempt", Err: err}
	}

	s.emit(model.ChangeEvent{Kind: model.ChangeInsert, Attempt: a})
	return nil
}

// Changes returns the attempt change feed. Events carry the full new record
// image; consumers must handle insert and update kinds identically.
func (s *Store) Changes() <-chan model.ChangeEvent {
	return s.changes
}

// emit never blocks the writer: if no consumer is draining the feed, the
// event is dropped and logged. Redelivery is the delivery layer's concern,
// not the store's.
func (s *Store) emit(ev model.ChangeEvent) {
	select {
	case s.changes <- ev:
	default:
		slog.Warn("change feed full, dropping event", "email", ev.Attempt.Email)
	}
}

// ListAttempts returns all persisted attempts, newest first.
func (s *Store) ListAttempts() ([]model.AttemptResult, error) {
	rows, err := s.db.Query(`SELECT email, score, result, details FROM attempts ORDER BY id DESC`)
	if err != nil {
		return nil, &StorageError{Op: "list attempts", Err: err}
	}
	defer rows.Close()

	var attempts []model.AttemptResult
	for rows.Next() {
		var a model.AttemptResult
		var details string
		if err := rows.Scan(&a.Email, &a.Score, &a.Result, &details); err != nil {
			return nil, &StorageError{Op: "list attempts", Err: err}
		}
		if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
			return nil, &StorageError{Op: "list attempts", Err: err}
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list attempts", Err: err}
	}
	return attempts, nil
}
