// Package store persists loss observations in a single SQLite file.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Schema is created idempotently on open. The read paths additionally filter
// packet_loss to 0-100 so rows written before the range check existed cannot
// leak into results.
const schema = `
CREATE TABLE IF NOT EXISTS traceroute_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	connection_name TEXT NOT NULL,
	target_ip TEXT NOT NULL,
	packet_loss REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_connection_timestamp
	ON traceroute_results(connection_name, timestamp);
`

// Observation is one persisted packet-loss sample.
type Observation struct {
	ID         int64
	Timestamp  int64
	Connection string
	Target     string
	Loss       float64
}

type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %v: %w", path, err)
	}

	// SQLite serialises writers; a single connection avoids database-locked
	// errors when captures run concurrently.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends one observation. Each call is a single atomic write; rows
// are never deduplicated, so duplicate timestamps for one connection are
// retained. Loss values outside 0-100 are refused.
func (s *Store) Insert(ctx context.Context, connection, target string, loss float64, timestamp int64) error {
	if loss < 0 || loss > 100 {
		return fmt.Errorf("store: refusing out-of-range packet loss %v%% for %v", loss, connection)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traceroute_results (timestamp, connection_name, target_ip, packet_loss) VALUES (?, ?, ?, ?)`,
		timestamp, connection, target, loss)
	if err != nil {
		return fmt.Errorf("store: insert observation for %v: %w", connection, err)
	}

	logrus.Debugf("Saved packet loss for %v: %.2f%%", connection, loss)

	return nil
}

// QueryRange returns the connection's observations with timestamp >= since,
// ordered by timestamp then insertion order. Out-of-range loss values are
// filtered at read time.
func (s *Store) QueryRange(ctx context.Context, connection string, since int64) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, connection_name, target_ip, packet_loss
		 FROM traceroute_results
		 WHERE connection_name = ? AND timestamp >= ? AND packet_loss BETWEEN 0 AND 100
		 ORDER BY timestamp ASC, id ASC`,
		connection, since)
	if err != nil {
		return nil, fmt.Errorf("store: query range for %v: %w", connection, err)
	}
	defer rows.Close()

	var obs []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.ID, &o.Timestamp, &o.Connection, &o.Target, &o.Loss); err != nil {
			return nil, fmt.Errorf("store: scan observation: %w", err)
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query range for %v: %w", connection, err)
	}

	return obs, nil
}

// AverageSince returns the mean loss over the connection's observations with
// timestamp >= since. ok is false when no observation matches; an empty
// window is not an error and not zero loss.
func (s *Store) AverageSince(ctx context.Context, connection string, since int64) (avg float64, ok bool, err error) {
	var result sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT AVG(packet_loss) FROM traceroute_results
		 WHERE connection_name = ? AND timestamp >= ? AND packet_loss BETWEEN 0 AND 100`,
		connection, since).Scan(&result)
	if err != nil {
		err = fmt.Errorf("store: average for %v: %w", connection, err)
		return
	}

	return result.Float64, result.Valid, nil
}
