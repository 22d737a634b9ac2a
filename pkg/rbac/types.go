package rbac

import (
	"time"

	"github.com/greenroomhq/greenroom/pkg/permission"
)

// RoleSuperAdmin is the distinguished role code that bypasses every
// permission check. Holding it is an unconditional trust decision.
const RoleSuperAdmin = "super_admin"

// Built-in role codes
const (
	RolePlatformAdmin   = "platform_admin"
	RolePlatformSupport = "platform_support"
	RoleTenantAdmin     = "tenant_admin"
	RoleTenantRecruiter = "tenant_recruiter"
	RoleAccountManager  = "account_manager"
	RoleAccountMember   = "account_member"
	RoleTalent          = "talent"
)

// Role is a named bundle of permission patterns with a numeric level.
// Built-in roles are global; custom roles belong to a tenant.
type Role struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Patterns  []string  `json:"patterns"`
	Level     int       `json:"level"`
	IsBuiltIn bool      `json:"is_built_in"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleAssignment binds a role to a user, optionally tenant-scoped and
// with an expiry.
type RoleAssignment struct {
	ID        int64      `json:"id"`
	UserID    string     `json:"user_id"`
	RoleID    int64      `json:"role_id"`
	TenantID  string     `json:"tenant_id,omitempty"`
	GrantedBy string     `json:"granted_by,omitempty"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Grant is the effective permission state resolved for an identity.
type Grant struct {
	Roles      []string `json:"roles"`
	Patterns   []string `json:"patterns"`
	SuperAdmin bool     `json:"super_admin"`
}

// CheckResult is the outcome of a single permission check. It is
// produced per check and consumed immediately; never persisted.
type CheckResult struct {
	Granted        bool   `json:"granted"`
	MatchedPattern string `json:"matched_pattern,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// BuiltInRoles returns all built-in role definitions
func BuiltInRoles() []Role {
	return []Role{
		{
			Code:      RoleSuperAdmin,
			Name:      "Super Admin",
			Level:     100,
			IsBuiltIn: true,
			Patterns:  []string{permission.Wildcard},
		},
		{
			Code:      RolePlatformAdmin,
			Name:      "Platform Admin",
			Level:     90,
			IsBuiltIn: true,
			Patterns:  []string{permission.PlatformAll, permission.TenantAll, permission.AccountAll},
		},
		{
			Code:      RolePlatformSupport,
			Name:      "Platform Support",
			Level:     80,
			IsBuiltIn: true,
			Patterns: []string{
				permission.PlatformTenantsRead,
				permission.PlatformUsersRead,
				"*.*.read",
			},
		},
		{
			Code:      RoleTenantAdmin,
			Name:      "Tenant Admin",
			Level:     60,
			IsBuiltIn: true,
			Patterns:  []string{permission.TenantAll, permission.AccountAll},
		},
		{
			Code:      RoleTenantRecruiter,
			Name:      "Tenant Recruiter",
			Level:     50,
			IsBuiltIn: true,
			Patterns: []string{
				permission.TenantAccountsRead,
				permission.TenantUsersRead,
				permission.TenantListingsManage,
				"tenant.*.read",
			},
		},
		{
			Code:      RoleAccountManager,
			Name:      "Account Manager",
			Level:     40,
			IsBuiltIn: true,
			Patterns:  []string{permission.AccountAll},
		},
		{
			Code:      RoleAccountMember,
			Name:      "Account Member",
			Level:     30,
			IsBuiltIn: true,
			Patterns: []string{
				permission.AccountTalentRead,
				permission.AccountBookingsRead,
				permission.AccountBookingsCreate,
				permission.AccountMessagesSend,
			},
		},
		{
			Code:      RoleTalent,
			Name:      "Talent",
			Level:     10,
			IsBuiltIn: true,
			Patterns: []string{
				permission.UserProfileRead,
				permission.UserProfileManage,
				permission.UserBookingsRead,
			},
		},
	}
}
