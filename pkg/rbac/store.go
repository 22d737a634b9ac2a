package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store is the role/permission storage collaborator consumed by the
// resolver. Implementations own their caching and TTL policy; the
// resolver treats reads as opaque and eventually consistent.
type Store interface {
	GetRolesForUser(ctx context.Context, userID string) ([]Role, error)
	GetRoleByCode(ctx context.Context, code string, tenantID string) (*Role, error)
	CreateRole(ctx context.Context, role *Role) error
	UpsertRole(ctx context.Context, role *Role) error
	ListRoles(ctx context.Context, tenantID string) ([]Role, error)
	AssignRole(ctx context.Context, assignment *RoleAssignment) error
	RevokeRole(ctx context.Context, userID string, roleID int64) error
}

const roleCacheSize = 512

// SQLStore implements Store on PostgreSQL with a small in-process LRU
// for role rows, which are read-mostly.
type SQLStore struct {
	db        *sql.DB
	roleCache *lru.Cache[int64, *Role]
}

// NewSQLStore creates a new RBAC store
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	cache, err := lru.New[int64, *Role](roleCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create role cache: %w", err)
	}
	return &SQLStore{db: db, roleCache: cache}, nil
}

// GetRolesForUser returns all non-expired roles assigned to a user.
func (s *SQLStore) GetRolesForUser(ctx context.Context, userID string) ([]Role, error) {
	query := `
		SELECT r.id, r.code, r.name, r.tenant_id, r.patterns, r.level, r.is_built_in, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND (ur.expires_at IS NULL OR ur.expires_at > $2)
	`
	rows, err := s.db.QueryContext(ctx, query, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to get roles for user: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		s.roleCache.Add(role.ID, role)
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// GetRole retrieves a role by ID, consulting the LRU first.
func (s *SQLStore) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	if role, ok := s.roleCache.Get(roleID); ok {
		return role, nil
	}

	query := `
		SELECT id, code, name, tenant_id, patterns, level, is_built_in, created_at, updated_at
		FROM roles
		WHERE id = $1
	`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, roleID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role not found: %d", roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	s.roleCache.Add(role.ID, role)
	return role, nil
}

// GetRoleByCode retrieves a role by code. Tenant-scoped custom roles
// shadow built-ins with the same code.
func (s *SQLStore) GetRoleByCode(ctx context.Context, code string, tenantID string) (*Role, error) {
	query := `
		SELECT id, code, name, tenant_id, patterns, level, is_built_in, created_at, updated_at
		FROM roles
		WHERE code = $1 AND (tenant_id = $2 OR tenant_id IS NULL)
		ORDER BY tenant_id IS NULL
		LIMIT 1
	`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, code, tenantID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role not found: %s", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role by code: %w", err)
	}
	return role, nil
}

// CreateRole creates a new role
func (s *SQLStore) CreateRole(ctx context.Context, role *Role) error {
	patternsJSON, err := json.Marshal(role.Patterns)
	if err != nil {
		return fmt.Errorf("failed to marshal patterns: %w", err)
	}

	query := `
		INSERT INTO roles (code, name, tenant_id, patterns, level, is_built_in, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	now := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		role.Code,
		role.Name,
		nullableString(role.TenantID),
		string(patternsJSON),
		role.Level,
		role.IsBuiltIn,
		now,
		now,
	).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// UpsertRole creates the role or refreshes its bundle if the code
// already exists. Used by the seed loader.
func (s *SQLStore) UpsertRole(ctx context.Context, role *Role) error {
	existing, err := s.GetRoleByCode(ctx, role.Code, role.TenantID)
	if err != nil {
		return s.CreateRole(ctx, role)
	}

	patternsJSON, err := json.Marshal(role.Patterns)
	if err != nil {
		return fmt.Errorf("failed to marshal patterns: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE roles SET name = $1, patterns = $2, level = $3, is_built_in = $4, updated_at = $5
		WHERE id = $6
	`, role.Name, string(patternsJSON), role.Level, role.IsBuiltIn, time.Now(), existing.ID)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	role.ID = existing.ID
	s.roleCache.Remove(existing.ID)
	return nil
}

// ListRoles lists built-in roles plus the tenant's custom roles.
func (s *SQLStore) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	query := `
		SELECT id, code, name, tenant_id, patterns, level, is_built_in, created_at, updated_at
		FROM roles
		WHERE tenant_id IS NULL OR tenant_id = $1
		ORDER BY level DESC, code
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// AssignRole assigns a role to a user
func (s *SQLStore) AssignRole(ctx context.Context, assignment *RoleAssignment) error {
	query := `
		INSERT INTO user_roles (user_id, role_id, tenant_id, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		assignment.UserID,
		assignment.RoleID,
		nullableString(assignment.TenantID),
		nullableString(assignment.GrantedBy),
		now,
		assignment.ExpiresAt,
	).Scan(&assignment.ID)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	assignment.GrantedAt = now
	return nil
}

// RevokeRole removes a role assignment from a user
func (s *SQLStore) RevokeRole(ctx context.Context, userID string, roleID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("role assignment not found")
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanRole scans a role from a database row
func scanRole(scanner interface {
	Scan(dest ...interface{}) error
}) (*Role, error) {
	var role Role
	var patternsJSON string
	var tenantID sql.NullString

	err := scanner.Scan(
		&role.ID,
		&role.Code,
		&role.Name,
		&tenantID,
		&patternsJSON,
		&role.Level,
		&role.IsBuiltIn,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	role.TenantID = tenantID.String
	if patternsJSON != "" {
		if err := json.Unmarshal([]byte(patternsJSON), &role.Patterns); err != nil {
			role.Patterns = []string{}
		}
	} else {
		role.Patterns = []string{}
	}
	return &role, nil
}
