package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service answers tenant and account lookups. The scope guards lean on
// AccountBelongsToTenant for every tenant-tier request that names an
// account, so implementations should keep it cheap.
type Service interface {
	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
	ListTenants(ctx context.Context) ([]*Tenant, error)
	DeleteTenant(ctx context.Context, id string) error

	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	ListAccounts(ctx context.Context, tenantID string) ([]*Account, error)
	DeleteAccount(ctx context.Context, id string) error

	AccountBelongsToTenant(ctx context.Context, accountID, tenantID string) (bool, error)
}

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// CreateTenant creates a new tenant
func (s *PostgresService) CreateTenant(ctx context.Context, tenant *Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	if tenant.Slug == "" {
		tenant.Slug = generateSlug(tenant.Name)
	}
	if tenant.Status == "" {
		tenant.Status = StatusActive
	}

	settingsJSON, err := json.Marshal(tenant.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO tenants (id, name, slug, status, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.db.ExecContext(ctx, query, tenant.ID, tenant.Name, tenant.Slug,
		tenant.Status, settingsJSON, now, now); err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	return nil
}

// GetTenant retrieves a tenant by ID
func (s *PostgresService) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	query := `
		SELECT id, name, slug, status, settings, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`
	return s.scanTenant(s.db.QueryRowContext(ctx, query, id))
}

// GetTenantBySlug retrieves a tenant by slug
func (s *PostgresService) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	query := `
		SELECT id, name, slug, status, settings, created_at, updated_at
		FROM tenants
		WHERE slug = $1
	`
	return s.scanTenant(s.db.QueryRowContext(ctx, query, slug))
}

// ListTenants lists all non-deleted tenants
func (s *PostgresService) ListTenants(ctx context.Context) ([]*Tenant, error) {
	query := `
		SELECT id, name, slug, status, settings, created_at, updated_at
		FROM tenants
		WHERE status != $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, StatusDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		tenant := &Tenant{}
		var settingsJSON []byte
		if err := rows.Scan(&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.Status,
			&settingsJSON, &tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		if len(settingsJSON) > 0 {
			if err := json.Unmarshal(settingsJSON, &tenant.Settings); err != nil {
				return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
			}
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

// DeleteTenant soft deletes a tenant
func (s *PostgresService) DeleteTenant(ctx context.Context, id string) error {
	query := `UPDATE tenants SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, StatusDeleted, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// CreateAccount creates a new account under a tenant
func (s *PostgresService) CreateAccount(ctx context.Context, account *Account) error {
	if account.TenantID == "" {
		return fmt.Errorf("account requires a tenant_id")
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Slug == "" {
		account.Slug = generateSlug(account.Name)
	}
	if account.Status == "" {
		account.Status = StatusActive
	}

	settingsJSON, err := json.Marshal(account.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO accounts (id, tenant_id, name, slug, owner_id, status, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := s.db.ExecContext(ctx, query, account.ID, account.TenantID, account.Name,
		account.Slug, account.OwnerID, account.Status, settingsJSON, now, now); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

// GetAccount retrieves an account by ID
func (s *PostgresService) GetAccount(ctx context.Context, id string) (*Account, error) {
	query := `
		SELECT id, tenant_id, name, slug, owner_id, status, settings, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`
	account := &Account{}
	var settingsJSON []byte
	var ownerID sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&account.ID, &account.TenantID, &account.Name, &account.Slug,
		&ownerID, &account.Status, &settingsJSON,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	account.OwnerID = ownerID.String
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &account.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return account, nil
}

// ListAccounts lists non-deleted accounts for a tenant
func (s *PostgresService) ListAccounts(ctx context.Context, tenantID string) ([]*Account, error) {
	query := `
		SELECT id, tenant_id, name, slug, owner_id, status, settings, created_at, updated_at
		FROM accounts
		WHERE tenant_id = $1 AND status != $2
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID, StatusDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account := &Account{}
		var settingsJSON []byte
		var ownerID sql.NullString
		if err := rows.Scan(&account.ID, &account.TenantID, &account.Name, &account.Slug,
			&ownerID, &account.Status, &settingsJSON,
			&account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		account.OwnerID = ownerID.String
		if len(settingsJSON) > 0 {
			if err := json.Unmarshal(settingsJSON, &account.Settings); err != nil {
				return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
			}
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// DeleteAccount soft deletes an account
func (s *PostgresService) DeleteAccount(ctx context.Context, id string) error {
	query := `UPDATE accounts SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, StatusDeleted, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// AccountBelongsToTenant reports whether the account exists under the
// given tenant. Deleted accounts do not count.
func (s *PostgresService) AccountBelongsToTenant(ctx context.Context, accountID, tenantID string) (bool, error) {
	query := `
		SELECT COUNT(1) FROM accounts
		WHERE id = $1 AND tenant_id = $2 AND status != $3
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, accountID, tenantID, StatusDeleted).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check account ownership: %w", err)
	}
	return count > 0, nil
}

func (s *PostgresService) scanTenant(row *sql.Row) (*Tenant, error) {
	tenant := &Tenant{}
	var settingsJSON []byte
	err := row.Scan(&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.Status,
		&settingsJSON, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &tenant.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return tenant, nil
}

// generateSlug derives a URL-safe slug from a display name
func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return slug
}
