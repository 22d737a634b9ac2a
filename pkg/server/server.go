// Package server assembles the HTTP API: routing, the middleware chain,
// and the declarative access rules the gate enforces.
package server

import (
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/greenroomhq/greenroom/pkg/audit"
	"github.com/greenroomhq/greenroom/pkg/auth"
	"github.com/greenroomhq/greenroom/pkg/config"
	"github.com/greenroomhq/greenroom/pkg/contextkeys"
	"github.com/greenroomhq/greenroom/pkg/directory"
	"github.com/greenroomhq/greenroom/pkg/middleware"
	"github.com/greenroomhq/greenroom/pkg/observability"
	"github.com/greenroomhq/greenroom/pkg/permission"
	"github.com/greenroomhq/greenroom/pkg/rbac"
	"github.com/greenroomhq/greenroom/pkg/routemeta"
	"github.com/greenroomhq/greenroom/pkg/tier"
)

// Options holds the collaborators the server needs. Config, Logger,
// TokenManager, Resolver, RBACStore and Directory are required; the
// rest may be nil.
type Options struct {
	Config       *config.Config
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	TokenManager *auth.TokenManager
	Resolver     rbac.Resolver
	RBACStore    rbac.Store
	Directory    directory.Service
	AuditLogger  audit.Logger
	AuditStore   audit.Store

	// Redis upgrades rate limiting from per-process to shared limits.
	Redis *redis.Client
}

// Server is the assembled HTTP API
type Server struct {
	opts   Options
	router *mux.Router
	rules  *routemeta.Registry
}

// New builds the router, registers every route with its access rule,
// and wires the middleware chain.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.TokenManager == nil {
		return nil, fmt.Errorf("token manager is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if opts.RBACStore == nil {
		return nil, fmt.Errorf("rbac store is required")
	}
	if opts.Directory == nil {
		return nil, fmt.Errorf("directory service is required")
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = audit.NewNoOpLogger()
	}

	s := &Server{
		opts:  opts,
		rules: routemeta.NewRegistry(),
	}
	s.registerRules()
	s.buildRouter()
	return s, nil
}

// Rules exposes the route rule registry, mainly for tests
func (s *Server) Rules() *routemeta.Registry {
	return s.rules
}

// Handler returns the root HTTP handler, wrapped for tracing when OTel
// is enabled.
func (s *Server) Handler() http.Handler {
	if s.opts.Config.Observability.OTelEnabled {
		return otelhttp.NewHandler(s.router, "greenroom.http")
	}
	return s.router
}

// registerRules declares the access requirements for every route group
// and route. The gate resolves these on each dispatch; a route missing
// here inherits its group default.
func (s *Server) registerRules() {
	// Group floors by path prefix.
	s.rules.SetGroupDefault("/user", routemeta.Rule{Tier: tier.User})
	s.rules.SetGroupDefault("/account", routemeta.Rule{
		Tier:                  tier.Account,
		RequireAccountContext: true,
	})
	s.rules.SetGroupDefault("/tenant", routemeta.Rule{
		Tier:                 tier.Tenant,
		RequireTenantContext: true,
	})
	s.rules.SetGroupDefault("/platform", routemeta.Rule{Tier: tier.Platform})

	// Tenant administration.
	s.rules.RegisterRule(http.MethodGet, "/tenant/accounts", routemeta.Rule{
		Tier:                 tier.Tenant,
		Permissions:          []string{permission.TenantAccountsRead},
		RequireTenantContext: true,
	})
	s.rules.RegisterRule(http.MethodPost, "/tenant/accounts", routemeta.Rule{
		Tier:                 tier.Tenant,
		Permissions:          []string{permission.TenantAccountsCreate},
		RequireTenantContext: true,
	})
	s.rules.RegisterRule(http.MethodDelete, "/tenant/accounts/{account_id}", routemeta.Rule{
		Tier:                  tier.Tenant,
		Permissions:           []string{permission.TenantAccountsManage},
		RequireTenantContext:  true,
		RequireAccountContext: true,
	})

	// Account scope.
	s.rules.RegisterRule(http.MethodGet, "/account/details", routemeta.Rule{
		Tier:                  tier.Account,
		Permissions:           []string{permission.AccountTalentRead},
		RequireAccountContext: true,
	})

	// Platform administration.
	s.rules.RegisterRule(http.MethodGet, "/platform/tenants", routemeta.Rule{
		Tier:        tier.Platform,
		Permissions: []string{permission.PlatformTenantsRead},
	})
	s.rules.RegisterRule(http.MethodPost, "/platform/tenants", routemeta.Rule{
		Tier:        tier.Platform,
		Permissions: []string{permission.PlatformTenantsCreate},
	})
	s.rules.RegisterRule(http.MethodDelete, "/platform/tenants/{tenant_id}", routemeta.Rule{
		Tier:        tier.Platform,
		Permissions: []string{permission.PlatformTenantsManage},
	})

	// Role administration (mounted rbac handlers).
	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/platform/roles"},
		{http.MethodPost, "/platform/roles"},
		{http.MethodGet, "/platform/users/{user_id}/roles"},
		{http.MethodPost, "/platform/users/{user_id}/roles"},
		{http.MethodDelete, "/platform/users/{user_id}/roles/{role_id}"},
		{http.MethodGet, "/platform/users/{user_id}/grant"},
		{http.MethodPost, "/platform/permissions/check"},
	} {
		s.rules.RegisterRule(route.method, route.path, routemeta.Rule{
			Tier:        tier.Platform,
			Permissions: []string{permission.PlatformRolesManage},
		})
	}

	// Audit trail (mounted audit handlers). Reading the trail is its own
	// permission so it can be granted to compliance staff without the
	// role-administration rights.
	for _, path := range []string{
		"/platform/audit/events",
		"/platform/audit/events/{id}",
		"/platform/audit/export",
		"/platform/audit/stats",
	} {
		s.rules.RegisterRule(http.MethodGet, path, routemeta.Rule{
			Tier:        tier.Platform,
			Permissions: []string{permission.PlatformAuditRead},
		})
	}
}

func (s *Server) buildRouter() {
	router := mux.NewRouter()

	router.Use(middleware.RequestIDMiddleware)
	if s.opts.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(s.opts.Metrics))
	}
	router.Use(audit.NewMiddleware(s.opts.AuditLogger, false).Handler)

	authMW := middleware.NewAuthMiddleware(s.opts.TokenManager, s.opts.Metrics, false)
	optionalAuthMW := middleware.NewAuthMiddleware(s.opts.TokenManager, s.opts.Metrics, true)

	var rateLimit mux.MiddlewareFunc
	if s.opts.Redis != nil {
		rateLimit = middleware.NewDistributedRateLimitMiddleware(s.opts.Redis).Handler
	} else {
		rateLimit = middleware.NewRateLimitMiddleware().Handler
	}
	gate := middleware.NewGate(s.rules, s.opts.Resolver, s.opts.Directory,
		s.opts.Metrics, s.opts.Logger, s.opts.AuditLogger)

	h := newHandlers(s.opts)

	// Public routes: authentication is optional and no gate applies.
	public := router.PathPrefix("/public").Subrouter()
	public.Use(optionalAuthMW.Handler, rateLimit)
	public.HandleFunc("/tenants/{slug}", h.PublicTenantPage).Methods(http.MethodGet)

	protect := func(prefix string) *mux.Router {
		sub := router.PathPrefix(prefix).Subrouter()
		sub.Use(authMW.Handler, auditActorMiddleware, rateLimit, gate.Middleware())
		return sub
	}

	user := protect("/user")
	user.HandleFunc("/me", h.WhoAmI).Methods(http.MethodGet)
	user.HandleFunc("/tokens", h.ListTokens).Methods(http.MethodGet)
	user.HandleFunc("/tokens", h.CreateToken).Methods(http.MethodPost)
	user.HandleFunc("/tokens/{token_id}", h.RevokeToken).Methods(http.MethodDelete)

	account := protect("/account")
	account.HandleFunc("/details", h.AccountDetails).Methods(http.MethodGet)

	tenant := protect("/tenant")
	tenant.HandleFunc("/accounts", h.ListAccounts).Methods(http.MethodGet)
	tenant.HandleFunc("/accounts", h.CreateAccount).Methods(http.MethodPost)
	tenant.HandleFunc("/accounts/{account_id}", h.DeleteAccount).Methods(http.MethodDelete)

	platform := protect("/platform")
	platform.HandleFunc("/tenants", h.ListTenants).Methods(http.MethodGet)
	platform.HandleFunc("/tenants", h.CreateTenant).Methods(http.MethodPost)
	platform.HandleFunc("/tenants/{tenant_id}", h.DeleteTenant).Methods(http.MethodDelete)

	rbac.NewHandlers(s.opts.RBACStore, s.opts.Resolver, s.opts.AuditLogger).RegisterRoutes(platform)
	if s.opts.AuditStore != nil {
		audit.NewHandlers(s.opts.AuditStore).RegisterRoutes(platform)
	}

	s.router = router
}

// auditActorMiddleware copies the authenticated identity into the audit
// context so every event carries its actor.
func auditActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authCtx := middleware.GetAuthContext(r); authCtx != nil && authCtx.Identity != nil {
			var tokenID *int64
			if authCtx.Token != nil {
				tokenID = &authCtx.Token.ID
			}
			ctx := audit.WithAuditContext(r.Context(),
				authCtx.Identity.ID,
				authCtx.Identity.TenantID,
				authCtx.Identity.AccountID,
				tokenID)
			ctx = contextkeys.WithUserID(ctx, authCtx.Identity.ID)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}
