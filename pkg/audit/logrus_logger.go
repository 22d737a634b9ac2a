package audit

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// LogrusLogger emits audit events as structured logrus entries. It is
// meant for shipping the audit trail to stdout or a log collector
// alongside the durable database trail.
type LogrusLogger struct {
	recorder
	log *logrus.Logger
}

// NewLogrusLogger creates a logrus-backed audit logger writing JSON
// entries to out. A nil out writes to stderr.
func NewLogrusLogger(out io.Writer) *LogrusLogger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if out != nil {
		log.SetOutput(out)
	}
	return NewLogrusLoggerWith(log)
}

// NewLogrusLoggerWith wraps an existing logrus logger
func NewLogrusLoggerWith(log *logrus.Logger) *LogrusLogger {
	l := &LogrusLogger{log: log}
	l.recorder = recorder{sink: l}
	return l
}

// Log logs an audit event as a structured entry
func (l *LogrusLogger) Log(ctx context.Context, event *AuditEvent) error {
	entry := l.log.WithFields(logrus.Fields{
		"audit":      true,
		"event_type": string(event.EventType),
		"status":     string(event.Status),
		"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
	})

	if event.UserID != "" {
		entry = entry.WithField("user_id", event.UserID)
	}
	if event.TenantID != "" {
		entry = entry.WithField("tenant_id", event.TenantID)
	}
	if event.AccountID != "" {
		entry = entry.WithField("account_id", event.AccountID)
	}
	if event.ResourceType != "" {
		entry = entry.WithFields(logrus.Fields{
			"resource_type": string(event.ResourceType),
			"resource_id":   event.ResourceID,
		})
	}
	if event.RequestID != "" {
		entry = entry.WithField("request_id", event.RequestID)
	}
	if event.Method != "" {
		entry = entry.WithFields(logrus.Fields{
			"method": event.Method,
			"path":   event.Path,
		})
	}
	if event.StatusCode != 0 {
		entry = entry.WithField("status_code", event.StatusCode)
	}
	if event.ErrorMessage != "" {
		entry = entry.WithField("error", event.ErrorMessage)
	}
	if len(event.Metadata) > 0 {
		entry = entry.WithField("metadata", event.Metadata)
	}

	switch event.Status {
	case EventStatusFailure:
		entry.Error(event.Message)
	case EventStatusDenied:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}

	return nil
}

// Close is a no-op; logrus writers are managed by the caller
func (l *LogrusLogger) Close() error {
	return nil
}
