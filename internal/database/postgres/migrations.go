package postgres

import (
	"context"
	"embed"

	"github.com/kozaktomas/lab-access/internal/database/dbx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var migrations = dbx.Migrations{
	Backend: "postgres",
	FS:      migrationsFS,
	Dir:     "migrations",
	CreateSQL: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`,
	RecordSQL: "INSERT INTO schema_migrations (version) VALUES ($1)",
}

// Migrate applies all pending migrations automatically on startup
func (p *Pool) Migrate(ctx context.Context) error {
	_, err := migrations.Apply(ctx, p.db)
	return err
}

// MigrationsApplied returns the list of applied migrations
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	return migrations.Applied(ctx, p.db)
}
