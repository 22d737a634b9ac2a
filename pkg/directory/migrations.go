package directory

import (
	"context"
	"database/sql"
	"fmt"
)

// RunMigrations creates the tenants and accounts tables
func RunMigrations(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
		CREATE TABLE IF NOT EXISTS tenants (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL UNIQUE,
			status VARCHAR(32) NOT NULL DEFAULT 'active',
			settings JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS accounts (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL REFERENCES tenants(id),
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL,
			owner_id VARCHAR(64),
			status VARCHAR(32) NOT NULL DEFAULT 'active',
			settings JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE(tenant_id, slug)
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_tenant_id ON accounts(tenant_id);`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("directory migration failed: %w", err)
		}
	}
	return nil
}
