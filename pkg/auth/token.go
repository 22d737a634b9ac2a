package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies Greenroom tokens
	TokenPrefix = "gr_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

var (
	// ErrTokenNotFound means no active token matches the presented value.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenRevoked means the token exists but has been revoked.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenExpired means the token exists but its expiry has passed.
	ErrTokenExpired = errors.New("token expired")
)

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token.
// Format: gr_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	hash := sha256.Sum256([]byte(fullToken))
	hashStr := hex.EncodeToString(hash[:])

	// First 8 chars after the prefix identify the token in listings.
	prefix := TokenPrefix
	if len(encodedToken) >= 8 {
		prefix = TokenPrefix + encodedToken[:8]
	}

	return fullToken, hashStr, prefix, nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// Store persists tokens and the identities they authenticate.
type Store interface {
	CreateToken(ctx context.Context, token *APIToken) error
	GetTokenByHash(ctx context.Context, tokenHash string) (*APIToken, error)
	TouchLastUsed(ctx context.Context, tokenID int64) error
	RevokeToken(ctx context.Context, tokenID int64, revokedBy, reason string) error
	ListUserTokens(ctx context.Context, userID string) ([]*APIToken, error)
	DeleteExpiredTokens(ctx context.Context) (int64, error)

	// GetIdentity loads the identity attributes (tier, tenant, account,
	// roles) for a user. The returned tier is raw and must be validated
	// by the caller.
	GetIdentity(ctx context.Context, userID string) (*Identity, error)
}

// TokenManager manages API token lifecycle
type TokenManager struct {
	generator *TokenGenerator
	store     Store
}

// NewTokenManager creates a new token manager
func NewTokenManager(store Store) *TokenManager {
	return &TokenManager{
		generator: NewTokenGenerator(),
		store:     store,
	}
}

// CreateToken creates a new API token. The plaintext token is returned
// once and never stored.
func (tm *TokenManager) CreateToken(ctx context.Context, userID string, name, description string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		Description: description,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
	}

	if err := tm.store.CreateToken(ctx, apiToken); err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken validates a presented token and returns the identity it
// authenticates. Revoked and expired tokens fail closed.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*Identity, *APIToken, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, nil, fmt.Errorf("invalid token format: %w", err)
	}

	tokenHash := tm.generator.HashToken(token)

	apiToken, err := tm.store.GetTokenByHash(ctx, tokenHash)
	if err != nil {
		return nil, nil, err
	}
	if apiToken.RevokedAt != nil {
		return nil, nil, ErrTokenRevoked
	}
	if apiToken.ExpiresAt != nil && apiToken.ExpiresAt.Before(time.Now()) {
		return nil, nil, ErrTokenExpired
	}

	identity, err := tm.store.GetIdentity(ctx, apiToken.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load identity: %w", err)
	}

	// Best effort; a failed touch must not fail authentication.
	_ = tm.store.TouchLastUsed(ctx, apiToken.ID)

	return identity, apiToken, nil
}

// RevokeToken revokes a token
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID int64, revokedBy, reason string) error {
	return tm.store.RevokeToken(ctx, tokenID, revokedBy, reason)
}

// ListUserTokens lists all tokens for a user
func (tm *TokenManager) ListUserTokens(ctx context.Context, userID string) ([]*APIToken, error) {
	return tm.store.ListUserTokens(ctx, userID)
}

// CleanupExpiredTokens removes expired tokens and reports how many.
func (tm *TokenManager) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return tm.store.DeleteExpiredTokens(ctx)
}
