package db

import (
	"database/sql"
	"fmt"
)

// Database is a connectable SQL backend that owns its *sql.DB.
type Database interface {
	Connect() error
	Close() error
	DB() *sql.DB
}

// Open connects d and returns its handle.
func Open(d Database) (*sql.DB, error) {
	if err := d.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return d.DB(), nil
}
