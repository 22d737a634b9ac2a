package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/greenroomhq/greenroom/pkg/audit"
	"github.com/greenroomhq/greenroom/pkg/auth"
	"github.com/greenroomhq/greenroom/pkg/contextkeys"
	"github.com/greenroomhq/greenroom/pkg/directory"
	"github.com/greenroomhq/greenroom/pkg/httputil"
	"github.com/greenroomhq/greenroom/pkg/observability"
	"github.com/greenroomhq/greenroom/pkg/rbac"
	"github.com/greenroomhq/greenroom/pkg/routemeta"
	"github.com/greenroomhq/greenroom/pkg/tier"
)

// ErrorCode classifies why the gate refused a request
type ErrorCode string

const (
	CodeUnauthenticated        ErrorCode = "unauthenticated"
	CodeInvalidTier            ErrorCode = "invalid_tier"
	CodeInsufficientTier       ErrorCode = "insufficient_tier"
	CodeInsufficientPermission ErrorCode = "insufficient_permission"
	CodeScopeViolation         ErrorCode = "scope_violation"
	CodeInternal               ErrorCode = "internal"
)

// Error is a gate refusal with an HTTP status. The wrapped cause, when
// present, is logged but never written to the client.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// NewScopeViolation builds the refusal for a scope the identity may not
// act in
func NewScopeViolation(scope, requested string) *Error {
	return &Error{
		Code:    CodeScopeViolation,
		Status:  http.StatusForbidden,
		Message: fmt.Sprintf("identity may not act in %s %q", scope, requested),
	}
}

// NewInternal builds the fail-closed refusal for an infrastructure
// failure during an authorization decision
func NewInternal(message string, cause error) *Error {
	return &Error{
		Code:    CodeInternal,
		Status:  http.StatusInternalServerError,
		Message: message,
		cause:   cause,
	}
}

// Gate is the composite authorization middleware. Checks run in a fixed
// order: authentication, tier, permissions, scope context. The first
// refusal stops the chain; an infrastructure failure denies the request
// rather than letting it through unchecked.
type Gate struct {
	registry *routemeta.Registry
	resolver rbac.Resolver
	dir      directory.Service
	metrics  *observability.Metrics
	logger   *observability.Logger
	audit    audit.Logger
}

// NewGate creates a gate. metrics and auditLogger may be nil; logger
// defaults to a stdout logger.
func NewGate(registry *routemeta.Registry, resolver rbac.Resolver, dir directory.Service, metrics *observability.Metrics, logger *observability.Logger, auditLogger audit.Logger) *Gate {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Gate{
		registry: registry,
		resolver: resolver,
		dir:      dir,
		metrics:  metrics,
		logger:   logger,
		audit:    auditLogger,
	}
}

// Middleware returns the gate as an HTTP middleware
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule := g.registry.Resolve(r.Method, routePath(r))

			r, gateErr := g.check(r, rule)
			if gateErr != nil {
				g.refuse(w, r, gateErr)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// check runs the ordered decision chain, returning the request with
// scope contexts attached on success.
func (g *Gate) check(r *http.Request, rule routemeta.Rule) (*http.Request, *Error) {
	authCtx := GetAuthContext(r)
	if authCtx == nil || authCtx.Identity == nil {
		return r, &Error{
			Code:    CodeUnauthenticated,
			Status:  http.StatusUnauthorized,
			Message: "authentication required",
		}
	}
	identity := authCtx.Identity

	// An identity with a tier outside the known set is a data integrity
	// problem, never a default. Refuse loudly.
	if !identity.Tier.Valid() {
		g.logger.WithFields(map[string]interface{}{
			"user_id": identity.ID,
			"tier":    string(identity.Tier),
		}).Error("identity carries unknown tier, refusing request")
		return r, &Error{
			Code:    CodeInvalidTier,
			Status:  http.StatusUnauthorized,
			Message: "identity tier is not recognized",
		}
	}

	if gateErr := g.checkTier(identity.Tier, rule.Tier); gateErr != nil {
		return r, gateErr
	}

	if gateErr := g.checkPermissions(r, identity, rule.Permissions); gateErr != nil {
		return r, gateErr
	}

	return g.attachScopes(r, identity, rule)
}

func (g *Gate) checkTier(actual, required tier.Tier) *Error {
	if required == "" {
		return nil
	}

	ok, err := tier.HasMinimum(actual, required)
	if g.metrics != nil {
		g.metrics.RecordTierCheck(string(required), ok && err == nil)
	}
	if err != nil {
		// Route metadata is validated at registration, so only a
		// corrupt identity tier lands here.
		return &Error{
			Code:    CodeInvalidTier,
			Status:  http.StatusUnauthorized,
			Message: "identity tier is not recognized",
			cause:   err,
		}
	}
	if !ok {
		return &Error{
			Code:    CodeInsufficientTier,
			Status:  http.StatusForbidden,
			Message: fmt.Sprintf("requires tier %q or above, identity has %q", required, actual),
		}
	}
	return nil
}

func (g *Gate) checkPermissions(r *http.Request, identity *auth.Identity, required []string) *Error {
	if len(required) == 0 {
		return nil
	}

	grant, err := g.resolver.Resolve(r.Context(), identity)
	if err != nil {
		g.logger.WithError(err).WithField("user_id", identity.ID).
			Error("permission resolution failed, denying request")
		g.audit.LogAuthorization(r.Context(), audit.EventTypeAuthzPermissionCheck, identity.ID,
			audit.ResourceTypePermission, strings.Join(required, ","), audit.EventStatusFailure,
			"permission resolution failed")
		return NewInternal("authorization check failed", err)
	}

	result := rbac.CheckGrant(grant, required)
	g.recordPermissionOutcomes(r, grant, required)

	if grant.SuperAdmin {
		if g.metrics != nil {
			g.metrics.SuperAdminBypassTotal.WithLabelValues(tier.FromPath(r.URL.Path)).Inc()
		}
		g.audit.LogAuthorization(r.Context(), audit.EventTypeAuthzSuperAdminBypass, identity.ID,
			audit.ResourceTypePermission, strings.Join(required, ","), audit.EventStatusSuccess,
			"super_admin bypass")
		return nil
	}

	if !result.Granted {
		g.audit.LogAuthorization(r.Context(), audit.EventTypeAuthzAccessDenied, identity.ID,
			audit.ResourceTypePermission, strings.Join(required, ","), audit.EventStatusDenied,
			result.Reason)
		return &Error{
			Code:    CodeInsufficientPermission,
			Status:  http.StatusForbidden,
			Message: fmt.Sprintf("requires one of: %s", strings.Join(required, ", ")),
		}
	}
	return nil
}

// recordPermissionOutcomes records one counter increment per required
// permission, labeled by the tier segment of the request path.
func (g *Gate) recordPermissionOutcomes(r *http.Request, grant *rbac.Grant, required []string) {
	if g.metrics == nil {
		return
	}
	tierLabel := tier.FromPath(r.URL.Path)
	for _, perm := range required {
		granted := grant.SuperAdmin
		if !granted {
			_, granted = matchedBy(grant, perm)
		}
		g.metrics.RecordPermissionCheck(perm, granted, tierLabel)
	}
}

func matchedBy(grant *rbac.Grant, permission string) (string, bool) {
	result := rbac.CheckGrant(grant, []string{permission})
	return result.MatchedPattern, result.Granted
}

func (g *Gate) attachScopes(r *http.Request, identity *auth.Identity, rule routemeta.Rule) (*http.Request, *Error) {
	ctx := r.Context()

	if rule.RequireTenantContext {
		tc, gateErr := TenantGuard(identity, r)
		if gateErr != nil {
			g.recordContextCheck("tenant", "denied")
			return r, gateErr
		}
		g.recordContextCheck("tenant", contextOutcome(tc.ID))
		if tc.ID == "" {
			g.logger.WithField("user_id", identity.ID).
				Debug("request names no tenant scope, continuing unscoped")
		}
		ctx = contextkeys.WithTenant(ctx, tc)
	}

	if rule.RequireAccountContext {
		// Guard reads the body, so re-derive the request first.
		r = r.WithContext(ctx)
		ac, gateErr := AccountGuard(identity, r, g.dir)
		if gateErr != nil {
			g.recordContextCheck("account", "denied")
			return r, gateErr
		}
		g.recordContextCheck("account", contextOutcome(ac.ID))
		if ac.ID == "" {
			g.logger.WithField("user_id", identity.ID).
				Debug("request names no account scope, continuing unscoped")
		}
		ctx = contextkeys.WithAccount(ctx, ac)
	}

	return r.WithContext(ctx), nil
}

func contextOutcome(scopeID string) string {
	if scopeID == "" {
		return "skipped"
	}
	return "allowed"
}

func (g *Gate) recordContextCheck(scope, outcome string) {
	if g.metrics != nil {
		g.metrics.RecordContextCheck(scope, outcome)
	}
}

func (g *Gate) refuse(w http.ResponseWriter, r *http.Request, gateErr *Error) {
	logger := observability.UpdateLoggerWithTraceContext(r.Context(), g.logger.WithRequest(r.Context()))
	logger = logger.WithFields(map[string]interface{}{
		"code":   string(gateErr.Code),
		"method": r.Method,
		"path":   r.URL.Path,
	})
	switch gateErr.Code {
	case CodeInvalidTier, CodeInternal:
		logger.WithError(gateErr.cause).Error("request refused")
	default:
		logger.Info("request refused")
	}

	httputil.WriteRefusal(w, gateErr.Status, string(gateErr.Code), gateErr.Message)
}

// routePath prefers the mux route template so metadata lookup is stable
// across path parameter values.
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}
