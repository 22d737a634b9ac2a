package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/greenroomhq/greenroom/pkg/audit"
	"github.com/greenroomhq/greenroom/pkg/auth"
	"github.com/greenroomhq/greenroom/pkg/config"
	"github.com/greenroomhq/greenroom/pkg/directory"
	"github.com/greenroomhq/greenroom/pkg/httputil"
	"github.com/greenroomhq/greenroom/pkg/middleware"
	"github.com/greenroomhq/greenroom/pkg/observability"
	"github.com/greenroomhq/greenroom/pkg/rbac"
)

// handlers implements the non-mounted API endpoints
type handlers struct {
	cfg      *config.Config
	logger   *observability.Logger
	tokens   *auth.TokenManager
	resolver rbac.Resolver
	dir      directory.Service
	audit    audit.Logger
}

func newHandlers(opts Options) *handlers {
	return &handlers{
		cfg:      opts.Config,
		logger:   opts.Logger,
		tokens:   opts.TokenManager,
		resolver: opts.Resolver,
		dir:      opts.Directory,
		audit:    opts.AuditLogger,
	}
}

// PublicTenantPage returns the public profile of a tenant by slug.
func (h *handlers) PublicTenantPage(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	tenant, err := h.dir.GetTenantBySlug(r.Context(), slug)
	if err != nil {
		httputil.WriteNotFoundError(w, "tenant not found")
		return
	}
	if !tenant.IsActive() {
		httputil.WriteNotFoundError(w, "tenant not found")
		return
	}

	// Public view: no settings, no internal state.
	httputil.WriteSuccess(w, map[string]interface{}{
		"name": tenant.Name,
		"slug": tenant.Slug,
	})
}

// WhoAmI returns the authenticated identity and its effective grant.
func (h *handlers) WhoAmI(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	identity := authCtx.Identity

	grant, err := h.resolver.Resolve(r.Context(), identity)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"identity": identity,
		"grant":    grant,
	})
}

// CreateTokenRequest is the request body for creating an API token
type CreateTokenRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// CreateToken issues a new API token for the caller. The plaintext is
// returned once and never again.
func (h *handlers) CreateToken(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetAuthContext(r).Identity

	var req CreateTokenRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}

	expiresAt := req.ExpiresAt
	if expiresAt == nil && h.cfg.Auth.DefaultTokenTTL > 0 {
		t := time.Now().Add(h.cfg.Auth.DefaultTokenTTL)
		expiresAt = &t
	}

	token, plaintext, err := h.tokens.CreateToken(r.Context(), identity.ID, req.Name, req.Description, expiresAt)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.audit.LogAuthentication(r.Context(), audit.EventTypeAuthTokenCreate, identity.ID,
		audit.EventStatusSuccess, fmt.Sprintf("created token %q", token.Name))

	httputil.WriteCreated(w, map[string]interface{}{
		"token":     token,
		"plaintext": plaintext,
	})
}

// ListTokens returns the caller's tokens, without hashes.
func (h *handlers) ListTokens(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetAuthContext(r).Identity

	tokens, err := h.tokens.ListUserTokens(r.Context(), identity.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"tokens": tokens,
		"count":  len(tokens),
	})
}

// RevokeToken revokes one of the caller's own tokens.
func (h *handlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetAuthContext(r).Identity

	tokenID, ok := httputil.ParsePathInt64OrError(w, r, "token_id")
	if !ok {
		return
	}

	// Only the token's owner may revoke it through this endpoint.
	tokens, err := h.tokens.ListUserTokens(r.Context(), identity.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	owned := false
	for _, t := range tokens {
		if t.ID == tokenID {
			owned = true
			break
		}
	}
	if !owned {
		httputil.WriteNotFoundError(w, "token not found")
		return
	}

	if err := h.tokens.RevokeToken(r.Context(), tokenID, identity.ID, "revoked by owner"); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.audit.LogAuthentication(r.Context(), audit.EventTypeAuthTokenRevoke, identity.ID,
		audit.EventStatusSuccess, fmt.Sprintf("revoked token %d", tokenID))

	httputil.WriteNoContent(w)
}

// AccountDetails returns the account record for the request's account
// scope.
func (h *handlers) AccountDetails(w http.ResponseWriter, r *http.Request) {
	ac := middleware.GetAccountContext(r)
	if ac == nil || ac.ID == "" {
		httputil.WriteValidationError(w, "request names no account")
		return
	}

	account, err := h.dir.GetAccount(r.Context(), ac.ID)
	if err != nil {
		httputil.WriteNotFoundError(w, "account not found")
		return
	}

	httputil.WriteSuccess(w, account)
}

// ListAccounts returns the accounts of the request's tenant scope.
func (h *handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	tc := middleware.GetTenantContext(r)
	if tc == nil || tc.ID == "" {
		httputil.WriteValidationError(w, "request names no tenant")
		return
	}

	accounts, err := h.dir.ListAccounts(r.Context(), tc.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"tenant_id": tc.ID,
		"accounts":  accounts,
		"count":     len(accounts),
	})
}

// CreateAccountRequest is the request body for creating an account
type CreateAccountRequest struct {
	Name    string `json:"name"`
	Slug    string `json:"slug,omitempty"`
	OwnerID string `json:"owner_id,omitempty"`
}

// CreateAccount creates an account inside the request's tenant scope.
func (h *handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	tc := middleware.GetTenantContext(r)
	if tc == nil || tc.ID == "" {
		httputil.WriteValidationError(w, "request names no tenant")
		return
	}

	var req CreateAccountRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}

	account := &directory.Account{
		TenantID: tc.ID,
		Name:     req.Name,
		Slug:     req.Slug,
		OwnerID:  req.OwnerID,
	}
	if err := h.dir.CreateAccount(r.Context(), account); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.audit.LogDataMutation(r.Context(), audit.EventTypeDirAccountCreate, tc.UserID,
		audit.ResourceTypeAccount, account.ID, nil,
		fmt.Sprintf("created account %q in tenant %s", account.Name, tc.ID))

	httputil.WriteCreated(w, account)
}

// DeleteAccount deletes an account. The gate has already verified the
// account belongs to the caller's tenant.
func (h *handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	ac := middleware.GetAccountContext(r)
	if ac == nil || ac.ID == "" {
		httputil.WriteValidationError(w, "request names no account")
		return
	}

	if err := h.dir.DeleteAccount(r.Context(), ac.ID); err != nil {
		httputil.WriteNotFoundError(w, "account not found")
		return
	}

	h.audit.LogDataMutation(r.Context(), audit.EventTypeDirAccountDelete, ac.UserID,
		audit.ResourceTypeAccount, ac.ID, nil, "deleted account")

	httputil.WriteNoContent(w)
}

// ListTenants returns all tenants.
func (h *handlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.dir.ListTenants(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"tenants": tenants,
		"count":   len(tenants),
	})
}

// CreateTenantRequest is the request body for creating a tenant
type CreateTenantRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// CreateTenant provisions a new tenant.
func (h *handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetAuthContext(r).Identity

	var req CreateTenantRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}

	tenant := &directory.Tenant{
		Name: req.Name,
		Slug: req.Slug,
	}
	if err := h.dir.CreateTenant(r.Context(), tenant); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.audit.LogDataMutation(r.Context(), audit.EventTypeDirTenantCreate, identity.ID,
		audit.ResourceTypeTenant, tenant.ID, nil,
		fmt.Sprintf("created tenant %q", tenant.Name))

	httputil.WriteCreated(w, tenant)
}

// DeleteTenant deletes a tenant.
func (h *handlers) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetAuthContext(r).Identity
	tenantID := mux.Vars(r)["tenant_id"]

	if err := h.dir.DeleteTenant(r.Context(), tenantID); err != nil {
		httputil.WriteNotFoundError(w, "tenant not found")
		return
	}

	h.audit.LogDataMutation(r.Context(), audit.EventTypeDirTenantDelete, identity.ID,
		audit.ResourceTypeTenant, tenantID, nil, "deleted tenant")

	httputil.WriteNoContent(w)
}
