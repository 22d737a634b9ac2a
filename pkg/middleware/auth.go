package middleware

import (
	"net/http"
	"strings"

	"github.com/greenroomhq/greenroom/pkg/auth"
	"github.com/greenroomhq/greenroom/pkg/contextkeys"
	"github.com/greenroomhq/greenroom/pkg/httputil"
	"github.com/greenroomhq/greenroom/pkg/observability"
)

// ContextKey is DEPRECATED: Use contextkeys.Key instead
type ContextKey = contextkeys.Key

// AuthMiddleware authenticates requests with bearer API tokens and
// attaches the resolved identity to the request context. It does not
// make authorization decisions; that is the gate's job.
type AuthMiddleware struct {
	tokenManager *auth.TokenManager
	metrics      *observability.Metrics
	optional     bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenManager *auth.TokenManager, metrics *observability.Metrics, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		tokenManager: tokenManager,
		metrics:      metrics,
		optional:     optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.recordValidation("missing")
			httputil.WriteUnauthenticated(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.recordValidation("malformed")
			httputil.WriteUnauthenticated(w, "invalid authorization header format")
			return
		}

		identity, apiToken, err := m.tokenManager.ValidateToken(r.Context(), parts[1])
		if err != nil {
			m.recordValidation("invalid")
			httputil.WriteUnauthenticated(w, "invalid or expired token")
			return
		}
		m.recordValidation("valid")

		authCtx := &auth.AuthContext{
			Identity: identity,
			Token:    apiToken,
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		ctx = contextkeys.WithUserID(ctx, identity.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) recordValidation(status string) {
	if m.metrics != nil {
		m.metrics.TokenValidationsTotal.WithLabelValues(status).Inc()
	}
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	ctx := r.Context().Value(contextkeys.AuthKey)
	if ctx == nil {
		return nil
	}
	authCtx, ok := ctx.(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}
