// Package sqlite provides a durable core.ReportStore on top of SQLite using
// the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/groupchat/artifact"
	"github.com/hupe1980/groupchat/core"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	session_id TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	data       BLOB NOT NULL,
	created_at DATETIME NOT NULL
)`

// Store persists reports in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create reports table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Save inserts or replaces the report of its session.
func (s *Store) Save(r core.Report) error {
	if r.SessionID == "" {
		return fmt.Errorf("report without session id")
	}
	if r.Created.IsZero() {
		r.Created = time.Now().UTC()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO reports (session_id, name, data, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET name = excluded.name, data = excluded.data, created_at = excluded.created_at`,
		r.SessionID, r.Workflow, data, r.Created,
	)
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.SessionID, err)
	}
	return nil
}

// Get loads the report of a session or returns artifact.ErrNotFound.
func (s *Store) Get(sessionID string) (core.Report, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM reports WHERE session_id = ?`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Report{}, artifact.ErrNotFound
	}
	if err != nil {
		return core.Report{}, fmt.Errorf("get report %s: %w", sessionID, err)
	}
	var r core.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return core.Report{}, fmt.Errorf("decode report %s: %w", sessionID, err)
	}
	return r, nil
}

// List returns all stored session ids ordered by id.
func (s *Store) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT session_id FROM reports ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan report id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes the report of a session or returns artifact.ErrNotFound.
func (s *Store) Delete(sessionID string) error {
	res, err := s.db.Exec(`DELETE FROM reports WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete report %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete report %s: %w", sessionID, err)
	}
	if n == 0 {
		return artifact.ErrNotFound
	}
	return nil
}
