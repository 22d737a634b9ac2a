package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthTokenCreate       EventType = "auth.token_create"
	EventTypeAuthTokenRevoke       EventType = "auth.token_revoke"
	EventTypeAuthTokenValidate     EventType = "auth.token_validate"
	EventTypeAuthTokenValidateFail EventType = "auth.token_validate_fail"
	EventTypeAuthTokenCleanup      EventType = "auth.token_cleanup"

	// Authorization events
	EventTypeAuthzPermissionCheck  EventType = "authz.permission_check"
	EventTypeAuthzSuperAdminBypass EventType = "authz.super_admin_bypass"
	EventTypeAuthzAccessDenied     EventType = "authz.access_denied"
	EventTypeAuthzScopeViolation   EventType = "authz.scope_violation"
	EventTypeAuthzRoleAssign       EventType = "authz.role_assign"
	EventTypeAuthzRoleRevoke       EventType = "authz.role_revoke"
	EventTypeAuthzRoleChange       EventType = "authz.role_change"

	// Directory events
	EventTypeDirTenantCreate  EventType = "directory.tenant_create"
	EventTypeDirTenantDelete  EventType = "directory.tenant_delete"
	EventTypeDirAccountCreate EventType = "directory.account_create"
	EventTypeDirAccountDelete EventType = "directory.account_delete"

	// Configuration events
	EventTypeConfigChange   EventType = "config.change"
	EventTypeConfigSeedLoad EventType = "config.seed_load"

	// Admin events
	EventTypeAdminUserCreate     EventType = "admin.user_create"
	EventTypeAdminUserDeactivate EventType = "admin.user_deactivate"
	EventTypeAdminRoleCreate     EventType = "admin.role_create"
	EventTypeAdminRoleUpdate     EventType = "admin.role_update"
	EventTypeAdminRoleDelete     EventType = "admin.role_delete"

	// Read/access events (for sensitive operations)
	EventTypeAccessResourceRead EventType = "access.resource_read"
	EventTypeAccessAuditRead    EventType = "access.audit_read"
	EventTypeAccessAuditExport  EventType = "access.audit_export"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeTenant     ResourceType = "tenant"
	ResourceTypeAccount    ResourceType = "account"
	ResourceTypeUser       ResourceType = "user"
	ResourceTypeRole       ResourceType = "role"
	ResourceTypeToken      ResourceType = "token"
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeConfig     ResourceType = "config"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	// Core fields
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID    string `json:"user_id,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	TokenID   *int64 `json:"token_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	ResourceName string       `json:"resource_name,omitempty"`

	// Request context
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	// Actor filters
	UserID    string
	TenantID  string
	AccountID string

	// Event filters
	EventTypes []EventType
	Status     *EventStatus

	// Resource filters
	ResourceType ResourceType
	ResourceID   string
	ResourceName string

	// Request context filters
	IPAddress string
	Method    string
	Path      string

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // field name to sort by
	SortOrder string // "asc" or "desc"
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// AuditStats represents statistics about audit logs
type AuditStats struct {
	TotalEvents        int64                  `json:"total_events"`
	EventsByType       map[EventType]int64    `json:"events_by_type"`
	EventsByStatus     map[EventStatus]int64  `json:"events_by_status"`
	EventsByTenant     map[string]int64       `json:"events_by_tenant"`
	EventsByResource   map[ResourceType]int64 `json:"events_by_resource"`
	UniqueUsers        int64                  `json:"unique_users"`
	UniqueIPs          int64                  `json:"unique_ips"`
	FailedAuthAttempts int64                  `json:"failed_auth_attempts"`
	AccessDenials      int64                  `json:"access_denials"`
	TimeRange          *TimeRange             `json:"time_range,omitempty"`
}

// TimeRange represents a time range for statistics
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RetentionPolicy defines how long audit logs should be kept
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep audit logs
	RetentionDays int

	// ArchiveEnabled determines if old logs should be archived instead of deleted
	ArchiveEnabled bool

	// ArchivePath is where archived logs should be stored
	ArchivePath string

	// CompressArchive determines if archived logs should be compressed
	CompressArchive bool
}

// DefaultRetentionPolicy returns a default retention policy (90 days)
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays:   90,
		ArchiveEnabled:  true,
		ArchivePath:     "/var/greenroom/audit-archive",
		CompressArchive: true,
	}
}
