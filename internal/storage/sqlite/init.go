package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS transfers (
	id TEXT PRIMARY KEY,
	session_id TEXT,
	name TEXT NOT NULL,
	direction TEXT NOT NULL,
	protocol TEXT,
	status TEXT NOT NULL,
	reason TEXT,
	size INTEGER NOT NULL DEFAULT 0,
	parts INTEGER NOT NULL DEFAULT 0,
	instance_id TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transfers_finished_at ON transfers (finished_at);
`

// timeLayout is fixed width so stored timestamps sort and compare as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// InitDB opens the SQLite journal at path and creates the transfers table if it doesn't exist.
func InitDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single connection keeps concurrent writers from hitting SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}
