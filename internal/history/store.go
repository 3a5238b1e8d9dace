// Package history records applied filters in a SQLite database.
package history

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Entry is one filter application.
type Entry struct {
	ID           int
	Source       string
	Summary      string
	FilterJSON   string
	AppliedAt    time.Time
	Duration     time.Duration
	RowsTotal    int
	RowsMatched  int
	Success      bool
	ErrorMessage string
}

// Store manages filter history persistence.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the history database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Add records an entry. A zero AppliedAt is set to now.
func (s *Store) Add(entry Entry) error {
	if entry.AppliedAt.IsZero() {
		entry.AppliedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO filter_history
		(source, summary, filter_json, applied_at, duration_ms, rows_total, rows_matched, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Source,
		entry.Summary,
		entry.FilterJSON,
		entry.AppliedAt.UnixMilli(),
		entry.Duration.Milliseconds(),
		entry.RowsTotal,
		entry.RowsMatched,
		entry.Success,
		entry.ErrorMessage,
	)
	return err
}

const selectColumns = `
	SELECT id, source, summary, filter_json, applied_at,
	       duration_ms, rows_total, rows_matched, success, error_message
	FROM filter_history`

// GetRecent returns the most recent entries, newest first.
func (s *Store) GetRecent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(selectColumns+`
		ORDER BY applied_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Search returns entries whose source or summary contains query.
func (s *Store) Search(query string, limit int) ([]Entry, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.Query(selectColumns+`
		WHERE summary LIKE ? OR source LIKE ?
		ORDER BY applied_at DESC, id DESC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Prune keeps the newest keep entries and deletes the rest.
func (s *Store) Prune(keep int) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM filter_history
		WHERE id NOT IN (
			SELECT id FROM filter_history ORDER BY applied_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var appliedAt, durationMs int64

		err := rows.Scan(
			&e.ID,
			&e.Source,
			&e.Summary,
			&e.FilterJSON,
			&appliedAt,
			&durationMs,
			&e.RowsTotal,
			&e.RowsMatched,
			&e.Success,
			&e.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}

		e.AppliedAt = time.UnixMilli(appliedAt)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
