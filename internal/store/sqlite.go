// Package store implements the optional persistent history log: a SQLite
// table of edge transitions, queryable after the fact even though the
// Presence Table itself is in-memory only.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/npresenced/npresenced/pkg/models"
)

const DefaultDBPath = "/var/lib/npresenced/history.db"

// Store persists edge transitions to SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database, running migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mac TEXT NOT NULL,
			edge TEXT NOT NULL,
			name TEXT,
			timestamp DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transitions_mac ON transitions(mac);
		CREATE INDEX IF NOT EXISTS idx_transitions_timestamp ON transitions(timestamp);
	`)
	return err
}

// Record appends one edge transition, stamped with t.Timestamp (wall-clock
// unix seconds supplied by the caller).
func (s *Store) Record(t models.Transition) error {
	_, err := s.db.Exec(
		`INSERT INTO transitions (mac, edge, name, timestamp) VALUES (?, ?, ?, ?)`,
		t.MAC, t.Edge.String(), t.Name, time.Unix(t.Timestamp, 0).UTC(),
	)
	return err
}

// History returns the most recent transitions for mac, newest first.
func (s *Store) History(mac string, limit int) ([]models.Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT mac, edge, name, timestamp FROM transitions WHERE mac = ? ORDER BY timestamp DESC LIMIT ?`,
		mac, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transition
	for rows.Next() {
		var mac, edge, name string
		var ts time.Time
		if err := rows.Scan(&mac, &edge, &name, &ts); err != nil {
			return nil, err
		}
		out = append(out, models.Transition{
			MAC:       mac,
			Edge:      parseEdge(edge),
			Name:      name,
			Timestamp: ts.Unix(),
		})
	}
	return out, rows.Err()
}

func parseEdge(s string) models.Edge {
	switch s {
	case "up":
		return models.EdgeUp
	case "down":
		return models.EdgeDown
	default:
		return models.EdgeNone
	}
}
