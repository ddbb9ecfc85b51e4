// Package store provides SQLite persistence for the deal audit trail.
package store

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// Store writes every execution and unsolicited cancellation to disk.
type Store struct {
	db *sql.DB
}

// New creates a Store and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deals (
		reference TEXT PRIMARY KEY,
		instrument_id INTEGER NOT NULL,
		price INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		buyer_client_id INTEGER NOT NULL,
		buyer_order_id INTEGER NOT NULL,
		seller_client_id INTEGER NOT NULL,
		seller_order_id INTEGER NOT NULL,
		executed_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_deals_instrument ON deals(instrument_id, executed_at);
	CREATE INDEX IF NOT EXISTS idx_deals_buyer ON deals(buyer_client_id);
	CREATE INDEX IF NOT EXISTS idx_deals_seller ON deals(seller_client_id);

	CREATE TABLE IF NOT EXISTS cancellations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument_id INTEGER NOT NULL,
		client_id INTEGER NOT NULL,
		order_id INTEGER NOT NULL,
		way TEXT NOT NULL,
		price INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cancellations_instrument ON cancellations(instrument_id);
	`
	_, err := s.db.Exec(schema)
	return err
}
