package store

import (
	"context"
	"fmt"
	"time"
)

// Entry is one content-addressed activity log row.
type Entry struct {
	ID          int64     `json:"id"`
	StoreID     int64     `json:"store_id"`
	ContentHash string    `json:"content_hash"`
	Message     string    `json:"message"`
	Error       bool      `json:"error"`
	Count       int       `json:"count"`
	LastSeen    time.Time `json:"last_seen"`
	Created     time.Time `json:"created"`
}

// LogEntry records message against a store. A message already logged for
// the store (same text and severity) has its count incremented and its
// last-seen time refreshed instead of being inserted again.
//
// Uses ON CONFLICT(store_id, content_hash) DO UPDATE so repeated failures
// never grow the table.
func (s *Store) LogEntry(ctx context.Context, storeID int64, message string, isError bool) (Entry, error) {
	now := formatTime(s.now())
	entry := Entry{
		StoreID:     storeID,
		ContentHash: ContentHash(message, isError),
		Message:     message,
		Error:       isError,
	}

	var lastSeen, created string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO activity_log
		(store_id, content_hash, message, error, count, last_seen, created)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(store_id, content_hash) DO UPDATE
		SET count = count + 1, last_seen = excluded.last_seen
		RETURNING id, count, last_seen, created
	`,
		storeID,
		entry.ContentHash,
		message,
		isError,
		now,
		now,
	).Scan(&entry.ID, &entry.Count, &lastSeen, &created)
	if err != nil {
		return Entry{}, fmt.Errorf("log entry: %w", err)
	}

	if entry.LastSeen, err = parseTime(lastSeen); err != nil {
		return Entry{}, fmt.Errorf("log entry: %w", err)
	}
	if entry.Created, err = parseTime(created); err != nil {
		return Entry{}, fmt.Errorf("log entry: %w", err)
	}
	return entry, nil
}

// Entries returns a store's activity, most recently seen first.
// A limit <= 0 returns every entry.
func (s *Store) Entries(ctx context.Context, storeID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, content_hash, message, error, count, last_seen, created
		FROM activity_log
		WHERE store_id = ?
		ORDER BY last_seen DESC, id DESC
		LIMIT ?
	`, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                 Entry
			lastSeen, created string
		)
		if err := rows.Scan(&e.ID, &e.StoreID, &e.ContentHash, &e.Message, &e.Error,
			&e.Count, &lastSeen, &created); err != nil {
			return nil, fmt.Errorf("list entries: scan: %w", err)
		}
		if e.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		if e.Created, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return out, nil
}
