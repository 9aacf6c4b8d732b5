package sqlite

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/dfryer1193/miblog/shared/db"
	"github.com/rs/zerolog/log"
)

const defaultPath = "./miblog.db"

type SQLiteConfig struct {
	Path string
}

// NewSQLiteConfig builds a config from SQLITE_DB_PATH, falling back to ./miblog.db.
func NewSQLiteConfig() *SQLiteConfig {
	path := os.Getenv("SQLITE_DB_PATH")
	if path == "" {
		path = defaultPath
	}

	return &SQLiteConfig{
		Path: path,
	}
}

// SQLiteDB implements the db.Database interface for SQLite
type SQLiteDB struct {
	dbPath string
	db     *sql.DB
}

func NewSQLiteDB(cfg *SQLiteConfig) *SQLiteDB {
	path := cfg.Path
	if path == "" {
		path = defaultPath
	}
	return &SQLiteDB{
		dbPath: path,
	}
}

// Connect opens the database, applies pragmas and runs pending migrations.
func (s *SQLiteDB) Connect() error {
	if s.db != nil {
		return fmt.Errorf("database already connected")
	}

	conn, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps transactions and
	// pragmas consistent.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-64000", // 64MB, negative means KB
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Debug().Str("path", s.dbPath).Int("schemaVersion", LatestVersion()).Msg("SQLite database ready")

	s.db = conn
	return nil
}

func (s *SQLiteDB) Close() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	return err
}

// DB returns the underlying *sql.DB, nil until Connect succeeds.
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

var _ db.Database = (*SQLiteDB)(nil)
