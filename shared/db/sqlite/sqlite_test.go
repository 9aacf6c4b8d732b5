package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/dfryer1193/miblog/shared/db"
)

func TestNewSQLiteConfig(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     string
	}{
		{
			name:     "env variable",
			envValue: "/tmp/env.db",
			want:     "/tmp/env.db",
		},
		{
			name: "default path",
			want: "./miblog.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SQLITE_DB_PATH", tt.envValue)

			database := NewSQLiteDB(NewSQLiteConfig())
			if database.dbPath != tt.want {
				t.Errorf("dbPath = %v, want %v", database.dbPath, tt.want)
			}
		})
	}
}

func TestNewSQLiteDBWithEmptyPath(t *testing.T) {
	database := NewSQLiteDB(&SQLiteConfig{})
	if database.dbPath != defaultPath {
		t.Errorf("dbPath = %v, want %v", database.dbPath, defaultPath)
	}
}

func TestSQLiteDB_Connect(t *testing.T) {
	database := NewSQLiteDB(&SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")})

	if err := database.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer database.Close()

	if database.DB() == nil {
		t.Error("DB() returned nil after Connect()")
	}

	var journalMode string
	if err := database.DB().QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to read journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want %q", journalMode, "wal")
	}

	if err := database.Connect(); err == nil {
		t.Error("Connect() should return error when already connected")
	}
}

func TestSQLiteDB_Close(t *testing.T) {
	database := NewSQLiteDB(&SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")})

	if err := database.Close(); err != nil {
		t.Errorf("Close() without Connect() error = %v", err)
	}

	if err := database.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := database.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if database.DB() != nil {
		t.Error("DB() should return nil after Close()")
	}
}

func TestOpen(t *testing.T) {
	database := NewSQLiteDB(&SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")})

	sqlDB, err := db.Open(database)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer database.Close()

	if sqlDB != database.DB() {
		t.Error("Open() should return the connected handle")
	}
}
