package rbac

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/greenroomhq/greenroom/pkg/audit"
	"github.com/greenroomhq/greenroom/pkg/auth"
	"github.com/greenroomhq/greenroom/pkg/contextkeys"
	"github.com/greenroomhq/greenroom/pkg/httputil"
	"github.com/greenroomhq/greenroom/pkg/tier"
)

// Handlers exposes role administration over HTTP. The routes it
// registers are expected to sit behind the authorization gate; the
// handlers themselves only validate input and delegate.
type Handlers struct {
	store       Store
	resolver    Resolver
	auditLogger audit.Logger
}

// NewHandlers creates role administration handlers
func NewHandlers(store Store, resolver Resolver, auditLogger audit.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Handlers{
		store:       store,
		resolver:    resolver,
		auditLogger: auditLogger,
	}
}

// RegisterRoutes registers role administration endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.ListRoles).Methods(http.MethodGet)
	router.HandleFunc("/roles", h.CreateRole).Methods(http.MethodPost)
	router.HandleFunc("/users/{user_id}/roles", h.ListUserRoles).Methods(http.MethodGet)
	router.HandleFunc("/users/{user_id}/roles", h.AssignRole).Methods(http.MethodPost)
	router.HandleFunc("/users/{user_id}/roles/{role_id}", h.RevokeRole).Methods(http.MethodDelete)
	router.HandleFunc("/users/{user_id}/grant", h.GetGrant).Methods(http.MethodGet)
	router.HandleFunc("/permissions/check", h.CheckPermission).Methods(http.MethodPost)
}

// ListRoles returns built-in roles plus the tenant's custom roles.
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")

	roles, err := h.store.ListRoles(r.Context(), tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"roles": roles,
		"count": len(roles),
	})
}

// CreateRoleRequest is the request body for creating a custom role
type CreateRoleRequest struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	TenantID string   `json:"tenant_id"`
	Patterns []string `json:"patterns"`
	Level    int      `json:"level"`
}

// CreateRole creates a tenant-scoped custom role.
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid JSON body")
		return
	}

	if req.Code == "" || req.Name == "" {
		httputil.WriteValidationError(w, "code and name are required")
		return
	}
	if req.Code == RoleSuperAdmin {
		httputil.WriteValidationError(w, "the super_admin role cannot be redefined")
		return
	}
	if req.TenantID == "" {
		httputil.WriteValidationError(w, "custom roles must be tenant-scoped")
		return
	}
	if len(req.Patterns) == 0 {
		httputil.WriteValidationError(w, "at least one permission pattern is required")
		return
	}

	role := &Role{
		Code:     req.Code,
		Name:     req.Name,
		TenantID: req.TenantID,
		Patterns: req.Patterns,
		Level:    req.Level,
	}
	if err := h.store.CreateRole(r.Context(), role); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.auditLogger.LogAdminAction(r.Context(), audit.EventTypeAdminRoleCreate,
		contextkeys.GetUserID(r.Context()), "",
		fmt.Sprintf("created role %q for tenant %s", role.Code, role.TenantID))

	httputil.WriteCreated(w, role)
}

// ListUserRoles returns the non-expired roles assigned to a user.
func (h *Handlers) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	roles, err := h.store.GetRolesForUser(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id": userID,
		"roles":   roles,
		"count":   len(roles),
	})
}

// AssignRoleRequest is the request body for assigning a role
type AssignRoleRequest struct {
	RoleCode  string     `json:"role_code"`
	TenantID  string     `json:"tenant_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AssignRole assigns a role to a user by role code.
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	var req AssignRoleRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid JSON body")
		return
	}
	if req.RoleCode == "" {
		httputil.WriteValidationError(w, "role_code is required")
		return
	}

	role, err := h.store.GetRoleByCode(r.Context(), req.RoleCode, req.TenantID)
	if err != nil {
		httputil.WriteNotFoundError(w, fmt.Sprintf("role %q not found", req.RoleCode))
		return
	}

	assignment := &RoleAssignment{
		UserID:    userID,
		RoleID:    role.ID,
		TenantID:  req.TenantID,
		GrantedBy: contextkeys.GetUserID(r.Context()),
		ExpiresAt: req.ExpiresAt,
	}
	if err := h.store.AssignRole(r.Context(), assignment); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.auditLogger.LogAdminAction(r.Context(), audit.EventTypeAuthzRoleAssign,
		assignment.GrantedBy, userID,
		fmt.Sprintf("assigned role %q", role.Code))

	httputil.WriteCreated(w, assignment)
}

// RevokeRole removes a role assignment from a user.
func (h *Handlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["user_id"]

	roleID, err := strconv.ParseInt(vars["role_id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid role ID")
		return
	}

	if err := h.store.RevokeRole(r.Context(), userID, roleID); err != nil {
		httputil.WriteNotFoundError(w, "role assignment not found")
		return
	}

	h.auditLogger.LogAdminAction(r.Context(), audit.EventTypeAuthzRoleRevoke,
		contextkeys.GetUserID(r.Context()), userID,
		fmt.Sprintf("revoked role %d", roleID))

	httputil.WriteNoContent(w)
}

// GetGrant resolves and returns a user's effective grant.
func (h *Handlers) GetGrant(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	grant, err := h.resolver.Resolve(r.Context(), &auth.Identity{ID: userID})
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id": userID,
		"grant":   grant,
	})
}

// CheckPermissionRequest is the request body for a permission check
type CheckPermissionRequest struct {
	UserID      string   `json:"user_id"`
	Tier        string   `json:"tier,omitempty"`
	Permissions []string `json:"permissions"`
}

// CheckPermission answers whether a user holds any of the listed
// permissions. Intended for support tooling and policy debugging, not
// as a substitute for the request gate.
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req CheckPermissionRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		httputil.WriteValidationError(w, "user_id is required")
		return
	}

	identity := &auth.Identity{ID: req.UserID}
	if req.Tier != "" {
		parsed, err := tier.Parse(req.Tier)
		if err != nil {
			httputil.WriteValidationError(w, err.Error())
			return
		}
		identity.Tier = parsed
	}

	result, err := h.resolver.HasAnyPermission(r.Context(), identity, req.Permissions)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	status := audit.EventStatusDenied
	if result.Granted {
		status = audit.EventStatusSuccess
	}
	h.auditLogger.LogAuthorization(r.Context(), audit.EventTypeAuthzPermissionCheck,
		req.UserID, audit.ResourceTypePermission, "", status, result.Reason)

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id": req.UserID,
		"result":  result,
	})
}
