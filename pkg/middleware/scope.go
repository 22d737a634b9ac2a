package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/greenroomhq/greenroom/pkg/auth"
	"github.com/greenroomhq/greenroom/pkg/contextkeys"
	"github.com/greenroomhq/greenroom/pkg/directory"
	"github.com/greenroomhq/greenroom/pkg/tier"
)

// maxScopeBodyBytes caps how much of a request body the scope resolver
// will read when looking for a scope field.
const maxScopeBodyBytes = 1 << 20

// TenantContext is attached to the request for tenant-scoped routes.
// ID is empty when the request named no tenant and the identity has no
// default; handlers must treat that as unscoped.
type TenantContext struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	Tier   tier.Tier `json:"tier"`
}

// AccountContext is attached to the request for account-scoped routes
type AccountContext struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	TenantID string    `json:"tenant_id"`
	Tier     tier.Tier `json:"tier"`
}

// GetTenantContext extracts the tenant context from a request
func GetTenantContext(r *http.Request) *TenantContext {
	if tc, ok := r.Context().Value(contextkeys.TenantKey).(*TenantContext); ok {
		return tc
	}
	return nil
}

// GetAccountContext extracts the account context from a request
func GetAccountContext(r *http.Request) *AccountContext {
	if ac, ok := r.Context().Value(contextkeys.AccountKey).(*AccountContext); ok {
		return ac
	}
	return nil
}

// resolveScopeID finds the requested scope ID for a request. Sources in
// priority order: route path variable, query parameter, JSON body field.
// Returns empty when no source names the scope.
func resolveScopeID(r *http.Request, key string) string {
	if vars := mux.Vars(r); vars != nil {
		if v, ok := vars[key]; ok && v != "" {
			return v
		}
	}

	if v := r.URL.Query().Get(key); v != "" {
		return v
	}

	return peekBodyField(r, key)
}

// peekBodyField reads a top-level string field out of a JSON body and
// restores the body so handlers can decode it again.
func peekBodyField(r *http.Request, key string) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxScopeBodyBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil || len(data) == 0 {
		return ""
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return ""
	}
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// TenantGuard resolves the tenant scope for a request and verifies the
// identity may act within it. Platform identities may act in any
// tenant. A request that names no tenant scope is not blocked; the
// context is attached with the identity's own tenant (possibly empty)
// and the handler decides what unscoped means.
func TenantGuard(identity *auth.Identity, r *http.Request) (*TenantContext, *Error) {
	requested := resolveScopeID(r, "tenant_id")
	if requested == "" {
		requested = identity.TenantID
	}

	tc := &TenantContext{
		ID:     requested,
		UserID: identity.ID,
		Tier:   identity.Tier,
	}

	if requested == "" {
		return tc, nil
	}
	if identity.Tier == tier.Platform {
		return tc, nil
	}
	if identity.TenantID != requested {
		return nil, NewScopeViolation("tenant", requested)
	}
	return tc, nil
}

// AccountGuard resolves the account scope for a request and verifies
// the identity may act within it. Platform identities may act in any
// account; tenant identities in any account belonging to their tenant;
// everyone else only in their own account.
func AccountGuard(identity *auth.Identity, r *http.Request, dir directory.Service) (*AccountContext, *Error) {
	requested := resolveScopeID(r, "account_id")
	if requested == "" {
		requested = identity.AccountID
	}

	ac := &AccountContext{
		ID:       requested,
		UserID:   identity.ID,
		TenantID: identity.TenantID,
		Tier:     identity.Tier,
	}

	if requested == "" {
		return ac, nil
	}

	switch identity.Tier {
	case tier.Platform:
		return ac, nil
	case tier.Tenant:
		ok, err := dir.AccountBelongsToTenant(r.Context(), requested, identity.TenantID)
		if err != nil {
			return nil, NewInternal("account ownership check failed", err)
		}
		if !ok {
			return nil, NewScopeViolation("account", requested)
		}
		return ac, nil
	default:
		if identity.AccountID != requested {
			return nil, NewScopeViolation("account", requested)
		}
		return ac, nil
	}
}
