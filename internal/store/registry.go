package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no store is registered for a user.
var ErrNotFound = errors.New("store: not found")

// Record is a user's task store registration.
type Record struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	LocalPath    string    `json:"local_path"`
	SecretID     string    `json:"secret_id"`
	TaskrcExtras string    `json:"taskrc_extras"`
	Configured   bool      `json:"configured"`
	CreatedAt    time.Time `json:"created_at"`
}

// GetOrCreate returns the record for username, inserting an empty one if
// none exists. created reports whether the record was inserted.
//
// Uses ON CONFLICT(username) DO NOTHING so concurrent callers converge on
// a single row.
func (s *Store) GetOrCreate(ctx context.Context, username string) (rec Record, created bool, err error) {
	if username == "" {
		return Record{}, false, fmt.Errorf("get or create store: empty username")
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO task_stores (username, created_at)
		VALUES (?, ?)
		ON CONFLICT(username) DO NOTHING
	`, username, formatTime(s.now()))
	if err != nil {
		return Record{}, false, fmt.Errorf("get or create store: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return Record{}, false, fmt.Errorf("get or create store: rows affected: %w", err)
	}

	rec, err = s.Get(ctx, username)
	if err != nil {
		return Record{}, false, fmt.Errorf("get or create store: %w", err)
	}
	return rec, rowsAffected > 0, nil
}

// Get returns the record for username, or ErrNotFound.
func (s *Store) Get(ctx context.Context, username string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, local_path, secret_id, taskrc_extras, configured, created_at
		FROM task_stores
		WHERE username = ?
	`, username)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	} else if err != nil {
		return Record{}, fmt.Errorf("get store %q: %w", username, err)
	}
	return rec, nil
}

// List returns every registered store ordered by id.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, local_path, secret_id, taskrc_extras, configured, created_at
		FROM task_stores
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list stores: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	return out, nil
}

// Save updates the mutable columns of an existing record.
func (s *Store) Save(ctx context.Context, rec Record) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE task_stores
		SET local_path = ?, secret_id = ?, taskrc_extras = ?, configured = ?
		WHERE id = ?
	`, rec.LocalPath, rec.SecretID, rec.TaskrcExtras, rec.Configured, rec.ID)
	if err != nil {
		return fmt.Errorf("save store %d: %w", rec.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save store %d: rows affected: %w", rec.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("save store %d: %w", rec.ID, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec     Record
		created string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Username,
		&rec.LocalPath,
		&rec.SecretID,
		&rec.TaskrcExtras,
		&rec.Configured,
		&created,
	); err != nil {
		return Record{}, err
	}
	t, err := parseTime(created)
	if err != nil {
		return Record{}, err
	}
	rec.CreatedAt = t
	return rec, nil
}
