package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all RBAC migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					code VARCHAR(100) NOT NULL,
					name VARCHAR(255) NOT NULL,
					tenant_id VARCHAR(64),
					patterns JSONB NOT NULL DEFAULT '[]',
					level INTEGER NOT NULL DEFAULT 0,
					is_built_in BOOLEAN DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(code, tenant_id)
				);

				CREATE INDEX IF NOT EXISTS idx_roles_code ON roles(code);
				CREATE INDEX IF NOT EXISTS idx_roles_tenant_id ON roles(tenant_id);
			`,
		},
		{
			Version:     2,
			Description: "Create user_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_roles (
					id BIGSERIAL PRIMARY KEY,
					user_id VARCHAR(64) NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					tenant_id VARCHAR(64),
					granted_by VARCHAR(64),
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_user_roles_user_id ON user_roles(user_id);
				CREATE INDEX IF NOT EXISTS idx_user_roles_role_id ON user_roles(role_id);
				CREATE INDEX IF NOT EXISTS idx_user_roles_expires_at ON user_roles(expires_at);
			`,
		},
	}
}

// RunMigrations applies all RBAC migrations in order
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, m := range GetMigrations() {
		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}

// SeedBuiltInRoles ensures the built-in role bundles exist, refreshing
// their patterns if the definitions changed between releases.
func SeedBuiltInRoles(ctx context.Context, store Store) error {
	for _, role := range BuiltInRoles() {
		r := role
		if err := store.UpsertRole(ctx, &r); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", role.Code, err)
		}
	}
	return nil
}
