// Package migrations embeds the ledger schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/israeldewcom/Real-wealth/pkg/logger"
)

//go:embed sql/*.sql
var files embed.FS

const dir = "sql"

// UpFiles lists the forward migrations in apply order.
func UpFiles() ([]string, error) {
	names, err := fs.Glob(files, dir+"/*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Apply executes every forward migration directly. Each statement is
// idempotent, so Apply is safe on an already migrated database. It is meant
// for tests and local runs; Up tracks versions.
func Apply(ctx context.Context, db *sql.DB) error {
	names, err := UpFiles()
	if err != nil {
		return err
	}
	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply %s: %w", strings.TrimPrefix(name, dir+"/"), err)
		}
	}
	return nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(files, dir)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "ledger_schema_migrations"})
	if err != nil {
		return nil, fmt.Errorf("create postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migration instance: %w", err)
	}
	return m, nil
}

// Up brings the schema to the latest version, recording progress in
// ledger_schema_migrations.
func Up(db *sql.DB, log *logger.Logger) error {
	if log == nil {
		log = logger.NewDefault("migrations")
	}
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("schema is up to date")
			return nil
		}
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			return fmt.Errorf("migration failed: dirty schema version %d", dirty.Version)
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	version, _, _ := m.Version()
	log.Infof("schema migrated to version %d", version)
	return nil
}

// Down rolls back every migration.
func Down(db *sql.DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}
