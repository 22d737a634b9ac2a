package audit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/greenroomhq/greenroom/pkg/contextkeys"
)

// Logger is a destination for audit events. The typed Log* methods
// shape common event kinds; Log takes a fully built event.
type Logger interface {
	Log(ctx context.Context, event *AuditEvent) error
	LogAuthentication(ctx context.Context, eventType EventType, userID string, status EventStatus, message string) error
	LogAuthorization(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, status EventStatus, message string) error
	LogDataMutation(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error
	LogConfiguration(ctx context.Context, eventType EventType, userID string, resourceID string, changes *ChangeDetails, message string) error
	LogAdminAction(ctx context.Context, eventType EventType, adminUserID, targetUserID string, message string) error
	LogAccess(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, message string) error
	LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error

	// Close flushes and releases the destination.
	Close() error
}

// eventSink is the part of a destination the recorder needs.
type eventSink interface {
	Log(ctx context.Context, event *AuditEvent) error
}

// recorder derives typed events and hands them to its sink. Every
// concrete destination embeds one pointed back at itself, so the
// database trail, the file trail, and the log-collector trail all
// record the same event shapes.
type recorder struct {
	sink eventSink
}

func (rec recorder) LogAuthentication(ctx context.Context, eventType EventType, userID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, status)
	event.UserID = userID
	event.Message = message
	event.ResourceType = ResourceTypeUser
	return rec.sink.Log(ctx, event)
}

func (rec recorder) LogAuthorization(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return rec.sink.Log(ctx, event)
}

func (rec recorder) LogDataMutation(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return rec.sink.Log(ctx, event)
}

func (rec recorder) LogConfiguration(ctx context.Context, eventType EventType, userID string, resourceID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = userID
	event.ResourceType = ResourceTypeConfig
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return rec.sink.Log(ctx, event)
}

func (rec recorder) LogAdminAction(ctx context.Context, eventType EventType, adminUserID, targetUserID string, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = adminUserID
	event.Message = message
	if targetUserID != "" {
		event.Metadata["target_user_id"] = targetUserID
	}
	return rec.sink.Log(ctx, event)
}

func (rec recorder) LogAccess(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return rec.sink.Log(ctx, event)
}

func (rec recorder) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	status := EventStatusSuccess
	if statusCode >= 400 {
		status = EventStatusFailure
	}
	if statusCode == http.StatusForbidden {
		status = EventStatusDenied
	}

	event := buildBaseEvent(ctx, r, EventTypeAccessResourceRead, status)
	event.StatusCode = statusCode
	event.Metadata["duration_ms"] = duration.Milliseconds()
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return rec.sink.Log(ctx, event)
}

// contextKey is the type for this package's context keys
type contextKey string

const (
	// AuditLoggerKey is the context key for the audit logger
	AuditLoggerKey contextKey = "audit_logger"

	// RequestStartTimeKey is the context key for request start time
	RequestStartTimeKey contextKey = "request_start_time"
)

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context, falling back to
// a discard logger so callers never need a nil check.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NewNoOpLogger()
}

// WithRequestStartTime adds the request start time to the context
func WithRequestStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, t)
}

// GetRequestStartTime retrieves the request start time from context
func GetRequestStartTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(RequestStartTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

// NewNoOpLogger returns a logger that discards every event
func NewNoOpLogger() Logger {
	l := &noOpLogger{}
	l.recorder = recorder{sink: l}
	return l
}

type noOpLogger struct {
	recorder
}

func (l *noOpLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }
func (l *noOpLogger) Close() error                                     { return nil }

// buildBaseEvent stamps an event with the actor and request context
// every destination records.
func buildBaseEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *AuditEvent {
	userID, tenantID, accountID, tokenID := GetAuditContext(ctx)

	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		UserID:    userID,
		TenantID:  tenantID,
		AccountID: accountID,
		TokenID:   tokenID,
		RequestID: contextkeys.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}

	if r != nil {
		event.IPAddress = requestAddr(r)
		event.UserAgent = r.UserAgent()
		event.Method = r.Method
		event.Path = r.URL.Path
	}

	return event
}

// requestAddr identifies the caller, preferring proxy headers over the
// socket address.
func requestAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// QuickLog records a bare event through the context logger
func QuickLog(ctx context.Context, eventType EventType, status EventStatus, message string) error {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Message:   message,
	}
	return FromContext(ctx).Log(ctx, event)
}

// LogSuccess records a successful operation through the context logger
func LogSuccess(ctx context.Context, eventType EventType, message string, metadata map[string]interface{}) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.Message = message
	if metadata != nil {
		event.Metadata = metadata
	}
	return FromContext(ctx).Log(ctx, event)
}

// LogFailure records a failed operation through the context logger
func LogFailure(ctx context.Context, eventType EventType, message string, err error) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusFailure)
	event.Message = message
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return FromContext(ctx).Log(ctx, event)
}

// LogDenied records an access refusal through the context logger
func LogDenied(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, reason string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusDenied)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = fmt.Sprintf("Access denied: %s", reason)
	return FromContext(ctx).Log(ctx, event)
}
