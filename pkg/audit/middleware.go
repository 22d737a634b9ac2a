package audit

import (
	"context"
	"net/http"
	"time"
)

// Middleware provides HTTP middleware for audit logging
type Middleware struct {
	logger         Logger
	logAllRequests bool // If false, only log mutations and sensitive operations
}

// NewMiddleware creates a new audit middleware
func NewMiddleware(logger Logger, logAllRequests bool) *Middleware {
	return &Middleware{
		logger:         logger,
		logAllRequests: logAllRequests,
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Handler wraps an HTTP handler with audit logging
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Add logger and start time to context
		ctx := WithLogger(r.Context(), m.logger)
		ctx = WithRequestStartTime(ctx, startTime)

		// Wrap response writer to capture status code
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(startTime)

		shouldLog := m.logAllRequests || m.shouldLogRequest(r, wrapped.statusCode)

		if shouldLog {
			// A failed audit write must not fail the request
			_ = m.logger.LogHTTPRequest(ctx, r, wrapped.statusCode, duration, nil)
		}
	})
}

// shouldLogRequest determines if a request should be logged
func (m *Middleware) shouldLogRequest(r *http.Request, statusCode int) bool {
	// Always log mutations (POST, PUT, PATCH, DELETE)
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return true
	}

	// Always log errors and denials
	if statusCode >= 400 {
		return true
	}

	// Log access to sensitive endpoints
	if m.isSensitiveEndpoint(r.URL.Path) {
		return true
	}

	return false
}

// isSensitiveEndpoint checks if an endpoint is considered sensitive
func (m *Middleware) isSensitiveEndpoint(path string) bool {
	sensitivePrefixes := []string{"/auth", "/audit", "/platform", "/config"}
	for _, prefix := range sensitivePrefixes {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// LogSuccess is a helper for logging successful operations from handlers
func (m *Middleware) LogSuccess(ctx context.Context, eventType EventType, message string, metadata map[string]interface{}) error {
	return LogSuccess(ctx, eventType, message, metadata)
}

// LogFailure is a helper for logging failed operations from handlers
func (m *Middleware) LogFailure(ctx context.Context, eventType EventType, message string, err error) error {
	return LogFailure(ctx, eventType, message, err)
}

// LogDenied is a helper for logging access denied from handlers
func (m *Middleware) LogDenied(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, reason string) error {
	return LogDenied(ctx, eventType, resourceType, resourceID, reason)
}

// WithAuditContext adds audit-relevant actor information to the context
func WithAuditContext(ctx context.Context, userID, tenantID, accountID string, tokenID *int64) context.Context {
	if userID != "" {
		ctx = context.WithValue(ctx, contextKey("audit_user_id"), userID)
	}
	if tenantID != "" {
		ctx = context.WithValue(ctx, contextKey("audit_tenant_id"), tenantID)
	}
	if accountID != "" {
		ctx = context.WithValue(ctx, contextKey("audit_account_id"), accountID)
	}
	if tokenID != nil {
		ctx = context.WithValue(ctx, contextKey("audit_token_id"), *tokenID)
	}
	return ctx
}

// GetAuditContext retrieves audit actor information from the context
func GetAuditContext(ctx context.Context) (userID, tenantID, accountID string, tokenID *int64) {
	if val, ok := ctx.Value(contextKey("audit_user_id")).(string); ok {
		userID = val
	}
	if val, ok := ctx.Value(contextKey("audit_tenant_id")).(string); ok {
		tenantID = val
	}
	if val, ok := ctx.Value(contextKey("audit_account_id")).(string); ok {
		accountID = val
	}
	if val, ok := ctx.Value(contextKey("audit_token_id")).(int64); ok {
		tokenID = &val
	}
	return
}
