package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenroomhq/greenroom/pkg/auth"
	"github.com/greenroomhq/greenroom/pkg/contextkeys"
	"github.com/greenroomhq/greenroom/pkg/observability"
	"github.com/greenroomhq/greenroom/pkg/rbac"
	"github.com/greenroomhq/greenroom/pkg/routemeta"
	"github.com/greenroomhq/greenroom/pkg/tier"
)

// fakeResolver returns a fixed grant, or an error to simulate a
// storage failure during resolution
type fakeResolver struct {
	grant *rbac.Grant
	err   error
}

func (r *fakeResolver) Resolve(ctx context.Context, identity *auth.Identity) (*rbac.Grant, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.grant, nil
}

func (r *fakeResolver) HasAnyPermission(ctx context.Context, identity *auth.Identity, required []string) (*rbac.CheckResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	return rbac.CheckGrant(r.grant, required), nil
}

type gateFixture struct {
	gate     *Gate
	registry *routemeta.Registry
	metrics  *observability.Metrics
}

func newGateFixture(t *testing.T, resolver rbac.Resolver, dir *fakeDirectory) *gateFixture {
	t.Helper()

	registry := routemeta.NewRegistry()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	if dir == nil {
		dir = &fakeDirectory{}
	}

	return &gateFixture{
		gate:     NewGate(registry, resolver, dir, metrics, nil, nil),
		registry: registry,
		metrics:  metrics,
	}
}

func (f *gateFixture) serve(req *http.Request, handler http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.gate.Middleware()(handler).ServeHTTP(rec, req)
	return rec
}

func authedRequest(method, target string, identity *auth.Identity) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := contextkeys.WithAuth(req.Context(), &auth.AuthContext{Identity: identity})
	return req.WithContext(ctx)
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decodeGateError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGate_Unauthenticated(t *testing.T) {
	f := newGateFixture(t, &fakeResolver{grant: &rbac.Grant{}}, nil)
	f.registry.RegisterRule(http.MethodGet, "/user/profile", routemeta.Rule{Tier: tier.User})

	req := httptest.NewRequest(http.MethodGet, "/user/profile", nil)
	rec := f.serve(req, okHandler)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeGateError(t, rec)["error"])
}

func TestGate_InvalidTierRefused(t *testing.T) {
	f := newGateFixture(t, &fakeResolver{grant: &rbac.Grant{}}, nil)
	f.registry.RegisterRule(http.MethodGet, "/user/profile", routemeta.Rule{Tier: tier.User})

	identity := identityWith("u-1", tier.Tier("superuser"), "", "")
	rec := f.serve(authedRequest(http.MethodGet, "/user/profile", identity), okHandler)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_tier", decodeGateError(t, rec)["error"])
}

func TestGate_InsufficientTier(t *testing.T) {
	f := newGateFixture(t, &fakeResolver{grant: &rbac.Grant{}}, nil)
	f.registry.RegisterRule(http.MethodGet, "/tenant/settings", routemeta.Rule{Tier: tier.Tenant})

	identity := identityWith("u-1", tier.User, "", "")
	rec := f.serve(authedRequest(http.MethodGet, "/tenant/settings", identity), okHandler)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeGateError(t, rec)
	assert.Equal(t, "insufficient_tier", body["error"])
	assert.Contains(t, body["message"], `tier "tenant"`)
	assert.Contains(t, body["message"], `identity has "user"`)

	allowed := testutil.ToFloat64(f.metrics.TierChecksTotal.WithLabelValues("tenant", "false"))
	assert.Equal(t, float64(1), allowed)
}

func TestGate_TierSatisfiedByHigherTier(t *testing.T) {
	f := newGateFixture(t, &fakeResolver{grant: &rbac.Grant{}}, nil)
	f.registry.RegisterRule(http.MethodGet, "/account/things", routemeta.Rule{Tier: tier.Account})

	identity := identityWith("u-1", tier.Platform, "", "")
	rec := f.serve(authedRequest(http.MethodGet, "/account/things", identity), okHandler)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_InsufficientPermission(t *testing.T) {
	resolver := &fakeResolver{grant: &rbac.Grant{Patterns: []string{"user.profile.read"}}}
	f := newGateFixture(t, resolver, nil)
	f.registry.RegisterRule(http.MethodPost, "/tenant/members", routemeta.Rule{
		Tier:        tier.Tenant,
		Permissions: []string{"tenant.members.update"},
	})

	identity := identityWith("u-1", tier.Tenant, "t-acme", "")
	rec := f.serve(authedRequest(http.MethodPost, "/tenant/members", identity), okHandler)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeGateError(t, rec)
	assert.Equal(t, "insufficient_permission", body["error"])
	assert.Contains(t, body["message"], "tenant.members.update")

	denied := testutil.ToFloat64(f.metrics.PermissionChecksTotal.WithLabelValues("tenant.members.update", "false", "tenant"))
	assert.Equal(t, float64(1), denied)
}

func TestGate_PermissionGranted(t *testing.T) {
	resolver := &fakeResolver{grant: &rbac.Grant{Patterns: []string{"tenant.*"}}}
	f := newGateFixture(t, resolver, nil)
	f.registry.RegisterRule(http.MethodPost, "/tenant/members", routemeta.Rule{
		Tier:        tier.Tenant,
		Permissions: []string{"tenant.members.update"},
	})

	identity := identityWith("u-1", tier.Tenant, "t-acme", "")
	rec := f.serve(authedRequest(http.MethodPost, "/tenant/members", identity), okHandler)

	assert.Equal(t, http.StatusOK, rec.Code)

	granted := testutil.ToFloat64(f.metrics.PermissionChecksTotal.WithLabelValues("tenant.members.update", "true", "tenant"))
	assert.Equal(t, float64(1), granted)
}

func TestGate_EmptyPermissionListGranted(t *testing.T) {
	resolver := &fakeResolver{grant: &rbac.Grant{}}
	f := newGateFixture(t, resolver, nil)
	f.registry.RegisterRule(http.MethodGet, "/user/profile", routemeta.Rule{Tier: tier.User})

	identity := identityWith("u-1", tier.User, "", "")
	rec := f.serve(authedRequest(http.MethodGet, "/user/profile", identity), okHandler)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_SuperAdminBypass(t *testing.T) {
	resolver := &fakeResolver{grant: &rbac.Grant{
		Roles:      []string{rbac.RoleSuperAdmin},
		SuperAdmin: true,
	}}
	f := newGateFixture(t, resolver, nil)
	f.registry.RegisterRule(http.MethodDelete, "/platform/tenants", routemeta.Rule{
		Tier:        tier.Platform,
		Permissions: []string{"platform.tenants.delete"},
	})

	identity := identityWith("admin", tier.Platform, "", "")
	rec := f.serve(authedRequest(http.MethodDelete, "/platform/tenants", identity), okHandler)

	assert.Equal(t, http.StatusOK, rec.Code)

	bypasses := testutil.ToFloat64(f.metrics.SuperAdminBypassTotal.WithLabelValues("platform"))
	assert.Equal(t, float64(1), bypasses)
}

func TestGate_ResolverFailureFailsClosed(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("connection refused")}
	f := newGateFixture(t, resolver, nil)
	f.registry.RegisterRule(http.MethodGet, "/tenant/settings", routemeta.Rule{
		Tier:        tier.Tenant,
		Permissions: []string{"tenant.settings.read"},
	})

	identity := identityWith("u-1", tier.Tenant, "t-acme", "")
	rec := f.serve(authedRequest(http.MethodGet, "/tenant/settings", identity), okHandler)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", decodeGateError(t, rec)["error"])
}

func TestGate_TenantScopeAttached(t *testing.T) {
	resolver := &fakeResolver{grant: &rbac.Grant{}}
	f := newGateFixture(t, resolver, nil)
	f.registry.RegisterRule(http.MethodGet, "/tenant/settings", routemeta.Rule{
		Tier:                 tier.Tenant,
		RequireTenantContext: true,
	})

	identity := identityWith("u-1", tier.Tenant, "t-acme", "")

	var seen *TenantContext
	rec := f.serve(authedRequest(http.MethodGet, "/tenant/settings?tenant_id=t-acme", identity),
		func(w http.ResponseWriter, r *http.Request) {
			seen = GetTenantContext(r)
			w.WriteHeader(http.StatusOK)
		})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "t-acme", seen.ID)

	allowed := testutil.ToFloat64(f.metrics.ContextChecksTotal.WithLabelValues("tenant", "allowed"))
	assert.Equal(t, float64(1), allowed)
}

func TestGate_TenantScopeViolation(t *testing.T) {
	resolver := &fakeResolver{grant: &rbac.Grant{}}
	f := newGateFixture(t, resolver, nil)
	f.registry.RegisterRule(http.MethodGet, "/tenant/settings", routemeta.Rule{
		Tier:                 tier.Tenant,
		RequireTenantContext: true,
	})

	identity := identityWith("u-1", tier.Tenant, "t-acme", "")
	rec := f.serve(authedRequest(http.MethodGet, "/tenant/settings?tenant_id=t-other", identity), okHandler)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "scope_violation", decodeGateError(t, rec)["error"])

	denied := testutil.ToFloat64(f.metrics.ContextChecksTotal.WithLabelValues("tenant", "denied"))
	assert.Equal(t, float64(1), denied)
}

func TestGate_MissingScopeIsPermissiveButAttached(t *testing.T) {
	resolver := &fakeResolver{grant: &rbac.Grant{}}
	f := newGateFixture(t, resolver, nil)
	f.registry.RegisterRule(http.MethodGet, "/user/profile", routemeta.Rule{
		Tier:                 tier.User,
		RequireTenantContext: true,
	})

	identity := identityWith("u-1", tier.User, "", "")

	var seen *TenantContext
	rec := f.serve(authedRequest(http.MethodGet, "/user/profile", identity),
		func(w http.ResponseWriter, r *http.Request) {
			seen = GetTenantContext(r)
			w.WriteHeader(http.StatusOK)
		})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Empty(t, seen.ID)

	skipped := testutil.ToFloat64(f.metrics.ContextChecksTotal.WithLabelValues("tenant", "skipped"))
	assert.Equal(t, float64(1), skipped)
}

func TestGate_AccountScopeViaDirectory(t *testing.T) {
	resolver := &fakeResolver{grant: &rbac.Grant{}}
	dir := &fakeDirectory{owners: map[string]string{"a-studio": "t-acme"}}
	f := newGateFixture(t, resolver, dir)
	f.registry.RegisterRule(http.MethodGet, "/account/things", routemeta.Rule{
		Tier:                  tier.Account,
		RequireAccountContext: true,
	})

	identity := identityWith("u-1", tier.Tenant, "t-acme", "")

	var seen *AccountContext
	rec := f.serve(authedRequest(http.MethodGet, "/account/things?account_id=a-studio", identity),
		func(w http.ResponseWriter, r *http.Request) {
			seen = GetAccountContext(r)
			w.WriteHeader(http.StatusOK)
		})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "a-studio", seen.ID)
}

func TestGate_UnregisteredRoutePassesAuthenticated(t *testing.T) {
	resolver := &fakeResolver{grant: &rbac.Grant{}}
	f := newGateFixture(t, resolver, nil)

	identity := identityWith("u-1", tier.User, "", "")
	rec := f.serve(authedRequest(http.MethodGet, "/user/unlisted", identity), okHandler)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_GroupDefaultApplies(t *testing.T) {
	resolver := &fakeResolver{grant: &rbac.Grant{}}
	f := newGateFixture(t, resolver, nil)
	f.registry.SetGroupDefault("/platform", routemeta.Rule{Tier: tier.Platform})

	identity := identityWith("u-1", tier.Tenant, "t-acme", "")
	rec := f.serve(authedRequest(http.MethodGet, "/platform/anything", identity), okHandler)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "insufficient_tier", decodeGateError(t, rec)["error"])
}
