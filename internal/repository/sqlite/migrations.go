package sqlite

import (
	"context"
	"embed"

	"github.com/joshdurbin/guarded-shortener/internal/repository/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// runMigrations applies all pending migrations to the database
func (r *Repository) runMigrations(ctx context.Context) error {
	return migrate.Run(ctx, r.db, migrationsFS, "migrations", migrate.SQLite)
}
