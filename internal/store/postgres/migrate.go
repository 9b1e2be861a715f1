package postgres

import (
	"embed"

	"github.com/pressly/goose/v3"

	"github.com/avery-holt/cascade/internal/cerr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending goose migration embedded in this package,
// grounded on jordigilh-kubernaut's pressly/goose/v3 dependency (SPEC_FULL.md
// §3).
func (s *Store) Migrate() error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return cerr.Wrap(cerr.UnknownError, "failed to set goose dialect", "", false, err)
	}
	if err := goose.Up(s.db.DB, "migrations"); err != nil {
		return cerr.Wrap(cerr.UnknownError, "failed to apply migrations", "", false, err)
	}
	return nil
}
