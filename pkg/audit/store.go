package audit

import (
	"context"
	"time"
)

// Store is the read and retention side of the audit trail, serving the
// audit HTTP API and the retention cron.
type Store interface {
	// Search returns events matching the filter.
	Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error)

	// Get returns one event by ID, or nil when it does not exist.
	Get(ctx context.Context, id int64) (*AuditEvent, error)

	// GetStats aggregates the trail over an optional time range.
	GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error)

	// Export renders matching events in the given format.
	Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error)

	// Cleanup applies the retention policy, returning how many events
	// were removed.
	Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error)
}

// DBStore serves the Store interface from the PostgreSQL trail.
type DBStore struct {
	logger *DBLogger
}

func NewDBStore(logger *DBLogger) *DBStore {
	return &DBStore{logger: logger}
}

func (s *DBStore) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	return s.logger.Search(ctx, filter)
}

func (s *DBStore) Get(ctx context.Context, id int64) (*AuditEvent, error) {
	return s.logger.Get(ctx, id)
}

func (s *DBStore) GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error) {
	return s.logger.GetStats(ctx, startTime, endTime)
}

func (s *DBStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	events, err := s.logger.Search(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatCSV:
		return exportCSV(events)
	case ExportFormatNDJSON:
		return exportNDJSON(events)
	default:
		return exportJSON(events)
	}
}

// Cleanup deletes events older than the retention window, writing them
// to the archive first when the policy asks for one.
func (s *DBStore) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)

	if policy.ArchiveEnabled {
		expired, err := s.logger.Search(ctx, SearchFilter{EndTime: &cutoff})
		if err != nil {
			return 0, err
		}
		if len(expired) > 0 {
			if err := archiveEvents(expired, policy); err != nil {
				return 0, err
			}
		}
	}

	result, err := s.logger.db.ExecContext(ctx,
		"DELETE FROM audit_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
