package rbac

import (
	"context"
	"fmt"

	"github.com/greenroomhq/greenroom/pkg/auth"
	"github.com/greenroomhq/greenroom/pkg/observability"
	"github.com/greenroomhq/greenroom/pkg/permission"
)

// Resolver resolves the effective permission grant for an identity and
// answers permission checks against it. A storage failure during
// resolution propagates as an error and the caller must deny the
// request; resolution never fails open.
type Resolver interface {
	Resolve(ctx context.Context, identity *auth.Identity) (*Grant, error)
	HasAnyPermission(ctx context.Context, identity *auth.Identity, required []string) (*CheckResult, error)
}

// StoreResolver resolves grants from a Store.
type StoreResolver struct {
	store  Store
	logger *observability.Logger
}

// NewStoreResolver creates a new resolver backed by the given store
func NewStoreResolver(store Store, logger *observability.Logger) *StoreResolver {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &StoreResolver{store: store, logger: logger}
}

// Resolve fetches the identity's role memberships and unions their
// pattern bundles. The super-admin bypass is decided here, once per
// resolution, so the gate can log it distinctly from ordinary grants.
func (r *StoreResolver) Resolve(ctx context.Context, identity *auth.Identity) (*Grant, error) {
	roles, err := r.store.GetRolesForUser(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles: %w", err)
	}

	grant := &Grant{}
	seen := make(map[string]bool)
	for _, role := range roles {
		grant.Roles = append(grant.Roles, role.Code)
		if role.Code == RoleSuperAdmin {
			grant.SuperAdmin = true
		}
		for _, p := range role.Patterns {
			if !seen[p] {
				seen[p] = true
				grant.Patterns = append(grant.Patterns, p)
			}
		}
	}

	if grant.SuperAdmin {
		// Unconditional trust decision; auditors grep for this line.
		r.logger.WithFields(map[string]interface{}{
			"user_id": identity.ID,
			"bypass":  "super_admin",
		}).Info("super_admin bypass active for request")
	}

	return grant, nil
}

// HasAnyPermission reports whether the identity holds a pattern matching
// at least one required permission. An empty required list declares no
// restriction and is always granted.
func (r *StoreResolver) HasAnyPermission(ctx context.Context, identity *auth.Identity, required []string) (*CheckResult, error) {
	if len(required) == 0 {
		return &CheckResult{Granted: true, Reason: "no permissions required"}, nil
	}

	grant, err := r.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	return CheckGrant(grant, required), nil
}

// CheckGrant evaluates a required permission list against an already
// resolved grant. Split out so the gate can resolve once per request
// and still check several permission lists.
func CheckGrant(grant *Grant, required []string) *CheckResult {
	if len(required) == 0 {
		return &CheckResult{Granted: true, Reason: "no permissions required"}
	}
	if grant.SuperAdmin {
		return &CheckResult{Granted: true, Reason: "super_admin bypass"}
	}
	for _, req := range required {
		if matched, ok := permission.MatchAny(grant.Patterns, req); ok {
			return &CheckResult{
				Granted:        true,
				MatchedPattern: matched,
				Reason:         fmt.Sprintf("pattern %q matches %q", matched, req),
			}
		}
	}
	return &CheckResult{Granted: false, Reason: "no matching permission pattern"}
}
