package audit

import (
	"context"
	"testing"
	"time"
)

func newTestFileLogger(t *testing.T) *FileLogger {
	t.Helper()

	logger, err := NewFileLogger(FileLoggerConfig{
		BasePath: t.TempDir(),
		Rotate:   false,
	})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	return logger
}

func TestFileLogger_LogAndRead(t *testing.T) {
	logger := newTestFileLogger(t)

	events := []*AuditEvent{
		{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeAuthTokenCreate,
			Status:    EventStatusSuccess,
			UserID:    "user-1",
		},
		{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeAuthzAccessDenied,
			Status:    EventStatusDenied,
			UserID:    "user-2",
			TenantID:  "tenant-1",
		},
	}

	for _, event := range events {
		if err := logger.Log(context.Background(), event); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	read, err := logger.ReadLogs(0)
	if err != nil {
		t.Fatalf("ReadLogs() error = %v", err)
	}

	if len(read) != 2 {
		t.Fatalf("ReadLogs() returned %d events, want 2", len(read))
	}
	if read[0].UserID != "user-1" {
		t.Errorf("first event UserID = %s", read[0].UserID)
	}
	if read[1].TenantID != "tenant-1" {
		t.Errorf("second event TenantID = %s", read[1].TenantID)
	}
}

func TestFileLogger_ReadLogs_Count(t *testing.T) {
	logger := newTestFileLogger(t)

	for i := 0; i < 5; i++ {
		event := &AuditEvent{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeAccessResourceRead,
			Status:    EventStatusSuccess,
		}
		if err := logger.Log(context.Background(), event); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	read, err := logger.ReadLogs(3)
	if err != nil {
		t.Fatalf("ReadLogs() error = %v", err)
	}
	if len(read) != 3 {
		t.Errorf("ReadLogs(3) returned %d events", len(read))
	}
}

func TestFileLogger_LogAuthorization(t *testing.T) {
	logger := newTestFileLogger(t)

	err := logger.LogAuthorization(context.Background(), EventTypeAuthzSuperAdminBypass,
		"admin-1", ResourceTypePermission, "tenant.delete",
		EventStatusSuccess, "super_admin bypass")
	if err != nil {
		t.Fatalf("LogAuthorization() error = %v", err)
	}

	read, err := logger.ReadLogs(0)
	if err != nil {
		t.Fatalf("ReadLogs() error = %v", err)
	}
	if len(read) != 1 {
		t.Fatalf("ReadLogs() returned %d events", len(read))
	}
	if read[0].EventType != EventTypeAuthzSuperAdminBypass {
		t.Errorf("EventType = %s", read[0].EventType)
	}
}

func TestFileLogger_Close(t *testing.T) {
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	// Second close is a no-op
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
