package auth

import (
	"time"

	"github.com/greenroomhq/greenroom/pkg/tier"
)

// Identity is the authenticated caller of a request. It is constructed
// once per request from a verified token and never mutated afterwards.
type Identity struct {
	ID        string    `json:"id"`
	Tier      tier.Tier `json:"tier"`
	TenantID  string    `json:"tenant_id,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
}

// HasRole reports whether the identity carries the given role code.
func (id *Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// APIToken represents an issued API token. The plaintext token is
// returned exactly once at creation; only its SHA-256 hash is stored.
type APIToken struct {
	ID           int64      `json:"id"`
	UserID       string     `json:"user_id"`
	TokenHash    string     `json:"-"`
	TokenPrefix  string     `json:"token_prefix"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    string     `json:"revoked_by,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// AuthContext holds everything authentication establishes for a request.
type AuthContext struct {
	Identity *Identity
	Token    *APIToken
}
