package directory

import (
	"errors"
	"time"
)

// Status of a tenant or account record.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusDeleted   = "deleted"
)

var (
	// ErrTenantNotFound is returned when a tenant does not exist
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrAccountNotFound is returned when an account does not exist
	ErrAccountNotFound = errors.New("account not found")
)

// Tenant is a top-level customer workspace. Every account belongs to
// exactly one tenant.
type Tenant struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Slug      string                 `json:"slug"`
	Status    string                 `json:"status"`
	Settings  map[string]interface{} `json:"settings,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Account is a business unit inside a tenant, for example a single
// agency office or production company under an agency group.
type Account struct {
	ID        string                 `json:"id"`
	TenantID  string                 `json:"tenant_id"`
	Name      string                 `json:"name"`
	Slug      string                 `json:"slug"`
	OwnerID   string                 `json:"owner_id,omitempty"`
	Status    string                 `json:"status"`
	Settings  map[string]interface{} `json:"settings,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// IsActive reports whether the tenant is usable
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// IsActive reports whether the account is usable
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}
