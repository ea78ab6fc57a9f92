package infra

import (
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Migrate applies embedded goose migrations against the configured database.
// Runs over database/sql with the pq driver; the pgx pool is opened separately
// for runtime traffic.
func Migrate(databaseURL string, migrations fs.FS) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("migrate: open database: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("migrate: apply: %w", err)
	}
	return nil
}
