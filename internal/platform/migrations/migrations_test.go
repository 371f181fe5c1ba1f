package migrations

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"
)

func TestApplyExecutesAllMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	names, err := UpFiles()
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(names) != 7 {
		t.Fatalf("expected 7 migrations, got %d", len(names))
	}
	for range names {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS ledger_").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := Apply(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("ledger_users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ledger_plans").WillReturnError(errors.New("permission denied"))

	err = Apply(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "0002_plans.up.sql") {
		t.Fatalf("expected failure naming 0002_plans.up.sql, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEveryMigrationHasDown(t *testing.T) {
	names, err := UpFiles()
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	for _, name := range names {
		down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
		if _, err := files.ReadFile(down); err != nil {
			t.Errorf("missing %s", down)
		}
	}
}

func TestUpDownIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := Up(db, nil); err != nil {
		t.Fatalf("up: %v", err)
	}
	if err := Up(db, nil); err != nil {
		t.Fatalf("second up: %v", err)
	}
}
