package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/greenroomhq/greenroom/pkg/tier"
)

// SQLStore implements Store on top of database/sql.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new token/identity store
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the auth tables if they do not exist (PostgreSQL).
func (s *SQLStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) PRIMARY KEY,
		tier VARCHAR(20) NOT NULL,
		tenant_id VARCHAR(64),
		account_id VARCHAR(64),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS api_tokens (
		id BIGSERIAL PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL REFERENCES users(id),
		token_hash VARCHAR(64) NOT NULL UNIQUE,
		token_prefix VARCHAR(16) NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		expires_at TIMESTAMP WITH TIME ZONE,
		last_used_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		revoked_at TIMESTAMP WITH TIME ZONE,
		revoked_by VARCHAR(64),
		revoke_reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_api_tokens_user ON api_tokens(user_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate auth schema: %w", err)
	}
	return nil
}

// CreateToken inserts a new token record
func (s *SQLStore) CreateToken(ctx context.Context, token *APIToken) error {
	query := `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, description, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		token.UserID,
		token.TokenHash,
		token.TokenPrefix,
		token.Name,
		token.Description,
		token.ExpiresAt,
		token.CreatedAt,
	).Scan(&token.ID)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

// GetTokenByHash looks up a token by its SHA-256 hash
func (s *SQLStore) GetTokenByHash(ctx context.Context, tokenHash string) (*APIToken, error) {
	query := `
		SELECT id, user_id, token_hash, token_prefix, name, description, expires_at, last_used_at, created_at, revoked_at, revoked_by, revoke_reason
		FROM api_tokens
		WHERE token_hash = $1
	`
	var t APIToken
	var description, revokedBy, revokeReason sql.NullString
	var expiresAt, lastUsedAt, revokedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.TokenPrefix,
		&t.Name,
		&description,
		&expiresAt,
		&lastUsedAt,
		&t.CreatedAt,
		&revokedAt,
		&revokedBy,
		&revokeReason,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	t.Description = description.String
	t.RevokedBy = revokedBy.String
	t.RevokeReason = revokeReason.String
	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		t.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return &t, nil
}

// TouchLastUsed updates the token's last_used_at timestamp
func (s *SQLStore) TouchLastUsed(ctx context.Context, tokenID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, time.Now(), tokenID)
	return err
}

// RevokeToken marks a token as revoked
func (s *SQLStore) RevokeToken(ctx context.Context, tokenID int64, revokedBy, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_tokens
		SET revoked_at = $1, revoked_by = $2, revoke_reason = $3
		WHERE id = $4 AND revoked_at IS NULL
	`, time.Now(), revokedBy, reason, tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// ListUserTokens lists all tokens belonging to a user, newest first
func (s *SQLStore) ListUserTokens(ctx context.Context, userID string) ([]*APIToken, error) {
	query := `
		SELECT id, user_id, token_hash, token_prefix, name, description, expires_at, last_used_at, created_at, revoked_at, revoked_by, revoke_reason
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		var t APIToken
		var description, revokedBy, revokeReason sql.NullString
		var expiresAt, lastUsedAt, revokedAt sql.NullTime

		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.TokenHash,
			&t.TokenPrefix,
			&t.Name,
			&description,
			&expiresAt,
			&lastUsedAt,
			&t.CreatedAt,
			&revokedAt,
			&revokedBy,
			&revokeReason,
		); err != nil {
			return nil, err
		}
		t.Description = description.String
		t.RevokedBy = revokedBy.String
		t.RevokeReason = revokeReason.String
		if expiresAt.Valid {
			t.ExpiresAt = &expiresAt.Time
		}
		if lastUsedAt.Valid {
			t.LastUsedAt = &lastUsedAt.Time
		}
		if revokedAt.Valid {
			t.RevokedAt = &revokedAt.Time
		}
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

// DeleteExpiredTokens removes tokens whose expiry has passed
func (s *SQLStore) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}

// GetIdentity loads identity attributes for a user, including role codes
// assigned through the roles tables. The tier value is returned as stored;
// validation is the caller's responsibility.
func (s *SQLStore) GetIdentity(ctx context.Context, userID string) (*Identity, error) {
	query := `SELECT id, tier, tenant_id, account_id FROM users WHERE id = $1 AND is_active`
	var identity Identity
	var rawTier string
	var tenantID, accountID sql.NullString

	err := s.db.QueryRowContext(ctx, query, userID).Scan(&identity.ID, &rawTier, &tenantID, &accountID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found: %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	identity.Tier = tier.Tier(rawTier)
	identity.TenantID = tenantID.String
	identity.AccountID = accountID.String

	roleQuery := `
		SELECT r.code
		FROM roles r
		JOIN user_roles ur ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND (ur.expires_at IS NULL OR ur.expires_at > $2)
	`
	rows, err := s.db.QueryContext(ctx, roleQuery, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		identity.Roles = append(identity.Roles, code)
	}
	return &identity, rows.Err()
}
