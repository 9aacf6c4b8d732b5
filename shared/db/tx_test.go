package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"
)

var errAbort = errors.New("abort")

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// every pooled connection would otherwise get its own empty in-memory database
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE drafts (id INTEGER PRIMARY KEY, title TEXT)`)
	if err != nil {
		t.Fatalf("Failed to create drafts table: %v", err)
	}

	return db
}

func countDrafts(t *testing.T, db *sql.DB) int {
	t.Helper()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM drafts").Scan(&count); err != nil {
		t.Fatalf("Failed to count drafts: %v", err)
	}
	return count
}

func insertDraft(ctx context.Context, db *sql.DB, title string) error {
	_, err := GetExecutor(ctx, db).ExecContext(ctx, "INSERT INTO drafts (title) VALUES (?)", title)
	return err
}

func TestRunInTransaction_Commit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	err := RunInTransaction(context.Background(), db, func(txCtx context.Context) error {
		if _, ok := GetTx(txCtx); !ok {
			t.Error("Expected transaction in context")
		}
		return insertDraft(txCtx, db, "Intro to Caching")
	})
	if err != nil {
		t.Fatalf("RunInTransaction failed: %v", err)
	}

	if got := countDrafts(t, db); got != 1 {
		t.Errorf("Expected 1 row, got %d", got)
	}
}

func TestRunInTransaction_Rollback(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	err := RunInTransaction(context.Background(), db, func(txCtx context.Context) error {
		if err := insertDraft(txCtx, db, "Intro to Caching"); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("RunInTransaction error = %v, want %v", err, errAbort)
	}

	if got := countDrafts(t, db); got != 0 {
		t.Errorf("Expected 0 rows after rollback, got %d", got)
	}
}

func TestRunInTransaction_Nested(t *testing.T) {
	tests := []struct {
		name      string
		innerErr  error
		wantErr   bool
		wantCount int
	}{
		{name: "inner success commits both", innerErr: nil, wantErr: false, wantCount: 2},
		{name: "inner failure rolls back outer", innerErr: errAbort, wantErr: true, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			err := RunInTransaction(context.Background(), db, func(outerCtx context.Context) error {
				if err := insertDraft(outerCtx, db, "outer"); err != nil {
					return err
				}

				return RunInTransaction(outerCtx, db, func(innerCtx context.Context) error {
					outerTx, _ := GetTx(outerCtx)
					innerTx, _ := GetTx(innerCtx)
					if outerTx != innerTx {
						t.Error("Expected nested call to reuse the outer transaction")
					}

					if err := insertDraft(innerCtx, db, "inner"); err != nil {
						return err
					}
					return tt.innerErr
				})
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("RunInTransaction error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := countDrafts(t, db); got != tt.wantCount {
				t.Errorf("Expected %d rows, got %d", tt.wantCount, got)
			}
		})
	}
}

func TestGetExecutor(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	if executor := GetExecutor(ctx, db); executor != db {
		t.Error("Expected executor to be the database")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if executor := GetExecutor(WithTx(ctx, tx), db); executor != tx {
		t.Error("Expected executor to be the transaction")
	}
}
