package permission

// Platform-level permissions (operating the marketplace itself).
const (
	PlatformTenantsCreate = "platform.tenants.create"
	PlatformTenantsRead   = "platform.tenants.read"
	PlatformTenantsManage = "platform.tenants.manage"
	PlatformUsersRead     = "platform.users.read"
	PlatformUsersManage   = "platform.users.manage"
	PlatformRolesManage   = "platform.roles.manage"
	PlatformAuditRead     = "platform.audit.read"
	PlatformBillingManage = "platform.billing.manage"
)

// Tenant-level permissions (agency/staffing tenant administration).
const (
	TenantAccountsCreate = "tenant.accounts.create"
	TenantAccountsRead   = "tenant.accounts.read"
	TenantAccountsManage = "tenant.accounts.manage"
	TenantUsersCreate    = "tenant.users.create"
	TenantUsersRead      = "tenant.users.read"
	TenantUsersManage    = "tenant.users.manage"
	TenantListingsManage = "tenant.listings.manage"
)

// Account-level permissions (a client account inside a tenant).
const (
	AccountTalentRead     = "account.talent.read"
	AccountTalentManage   = "account.talent.manage"
	AccountBookingsCreate = "account.bookings.create"
	AccountBookingsRead   = "account.bookings.read"
	AccountMessagesSend   = "account.messages.send"
)

// User-level permissions (an individual profile).
const (
	UserProfileRead   = "user.profile.read"
	UserProfileManage = "user.profile.manage"
	UserBookingsRead  = "user.bookings.read"
)

// Module wildcards commonly bundled into roles. "platform.*" uses the
// two-segment module-wildcard form and covers every platform permission.
const (
	PlatformAll = "platform.*"
	TenantAll   = "tenant.*"
	AccountAll  = "account.*"
	UserAll     = "user.*"
)
