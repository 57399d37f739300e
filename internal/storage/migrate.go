package storage

import (
	"embed"
	"fmt"

	"github.com/adlio/schema"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies the embedded schema migrations. Already-applied
// migrations are skipped; concurrent callers serialize on an advisory lock.
func (s *PostgresStore) Migrate() error {
	migrations, err := schema.FSMigrations(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	if err := schema.NewMigrator(schema.WithDialect(schema.Postgres)).Apply(db, migrations); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
