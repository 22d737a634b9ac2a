package auth

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenroomhq/greenroom/pkg/tier"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			tier TEXT NOT NULL,
			tenant_id TEXT,
			account_id TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE api_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			token_prefix TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			expires_at TIMESTAMP,
			last_used_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			revoked_at TIMESTAMP,
			revoked_by TEXT,
			revoke_reason TEXT
		);

		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			tenant_id TEXT,
			patterns TEXT NOT NULL DEFAULT '[]',
			level INTEGER NOT NULL DEFAULT 0,
			is_built_in INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE user_roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			role_id INTEGER NOT NULL,
			tenant_id TEXT,
			granted_by TEXT,
			granted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP
		);
	`)
	require.NoError(t, err)
	return db
}

func seedUser(t *testing.T, db *sql.DB, id, userTier, tenantID, accountID string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO users (id, tier, tenant_id, account_id) VALUES (?, ?, ?, ?)`,
		id, userTier, tenantID, accountID)
	require.NoError(t, err)
}

func TestTokenGenerator_Roundtrip(t *testing.T) {
	gen := NewTokenGenerator()

	token, hash, prefix, err := gen.GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.True(t, strings.HasPrefix(prefix, TokenPrefix))
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, gen.HashToken(token))
	assert.NoError(t, gen.ValidateTokenFormat(token))
}

func TestTokenGenerator_ValidateTokenFormat(t *testing.T) {
	gen := NewTokenGenerator()

	assert.Error(t, gen.ValidateTokenFormat("sk_notours"))
	assert.Error(t, gen.ValidateTokenFormat("gr_"))
	assert.Error(t, gen.ValidateTokenFormat("gr_!!!not-base64url!!!"))
}

func TestTokenManager_CreateAndValidate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewSQLStore(db)
	tm := NewTokenManager(store)

	seedUser(t, db, "u-1", "tenant", "t-acme", "")

	apiToken, plaintext, err := tm.CreateToken(ctx, "u-1", "ci token", "", nil)
	require.NoError(t, err)
	assert.NotZero(t, apiToken.ID)

	identity, validated, err := tm.ValidateToken(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.ID)
	assert.Equal(t, tier.Tenant, identity.Tier)
	assert.Equal(t, "t-acme", identity.TenantID)
	assert.Equal(t, apiToken.ID, validated.ID)
}

func TestTokenManager_ValidateUnknownToken(t *testing.T) {
	db := setupTestDB(t)
	tm := NewTokenManager(NewSQLStore(db))

	gen := NewTokenGenerator()
	unknown, _, _, err := gen.GenerateToken()
	require.NoError(t, err)

	_, _, err = tm.ValidateToken(context.Background(), unknown)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenManager_RevokedToken(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tm := NewTokenManager(NewSQLStore(db))

	seedUser(t, db, "u-1", "user", "", "")

	apiToken, plaintext, err := tm.CreateToken(ctx, "u-1", "t", "", nil)
	require.NoError(t, err)

	require.NoError(t, tm.RevokeToken(ctx, apiToken.ID, "admin-1", "compromised"))

	_, _, err = tm.ValidateToken(ctx, plaintext)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestTokenManager_ExpiredToken(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tm := NewTokenManager(NewSQLStore(db))

	seedUser(t, db, "u-1", "user", "", "")

	past := time.Now().Add(-time.Hour)
	_, plaintext, err := tm.CreateToken(ctx, "u-1", "t", "", &past)
	require.NoError(t, err)

	_, _, err = tm.ValidateToken(ctx, plaintext)
	assert.ErrorIs(t, err, ErrTokenExpired)

	deleted, err := tm.CleanupExpiredTokens(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestSQLStore_GetIdentityWithRoles(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewSQLStore(db)

	seedUser(t, db, "u-9", "platform", "", "")

	res, err := db.Exec(`INSERT INTO roles (code, name) VALUES ('super_admin', 'Super Admin')`)
	require.NoError(t, err)
	roleID, _ := res.LastInsertId()
	_, err = db.Exec(`INSERT INTO user_roles (user_id, role_id) VALUES ('u-9', ?)`, roleID)
	require.NoError(t, err)

	identity, err := store.GetIdentity(ctx, "u-9")
	require.NoError(t, err)
	assert.Equal(t, []string{"super_admin"}, identity.Roles)
	assert.True(t, identity.HasRole("super_admin"))
	assert.False(t, identity.HasRole("tenant_admin"))
}

func TestSQLStore_ListUserTokens(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewSQLStore(db)
	tm := NewTokenManager(store)

	seedUser(t, db, "u-1", "user", "", "")

	_, _, err := tm.CreateToken(ctx, "u-1", "first", "", nil)
	require.NoError(t, err)
	_, _, err = tm.CreateToken(ctx, "u-1", "second", "", nil)
	require.NoError(t, err)

	tokens, err := tm.ListUserTokens(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}
