package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// DBLogger is the durable audit trail, backed by PostgreSQL. It is
// both a Logger destination and the query engine behind the audit
// read API.
type DBLogger struct {
	recorder
	db *sql.DB
}

// NewDBLogger creates the database trail, creating the audit_logs
// table on first use.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	l := &DBLogger{db: db}
	l.recorder = recorder{sink: l}

	if err := l.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}
	return l, nil
}

func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id VARCHAR(64),
		tenant_id VARCHAR(64),
		account_id VARCHAR(64),
		token_id BIGINT,
		resource_type VARCHAR(50),
		resource_id VARCHAR(255),
		resource_name VARCHAR(255),
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		status_code INTEGER,
		message TEXT,
		error_message TEXT,
		metadata JSONB,
		changes JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant_id ON audit_logs(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_status ON audit_logs(status);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_ip_address ON audit_logs(ip_address);
	`

	_, err := l.db.Exec(query)
	return err
}

// eventColumns matches the scan order in scanEvent.
const eventColumns = `id, timestamp, event_type, status,
	user_id, tenant_id, account_id, token_id,
	resource_type, resource_id, resource_name,
	ip_address, user_agent, request_id,
	method, path, status_code,
	message, error_message, metadata, changes`

// Log inserts one event and fills in its assigned ID.
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	var metadataJSON, changesJSON []byte
	var err error

	if event.Metadata != nil {
		if metadataJSON, err = json.Marshal(event.Metadata); err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if event.Changes != nil {
		if changesJSON, err = json.Marshal(event.Changes); err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, event_type, status,
			user_id, tenant_id, account_id, token_id,
			resource_type, resource_id, resource_name,
			ip_address, user_agent, request_id,
			method, path, status_code,
			message, error_message, metadata, changes
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.UserID, event.TenantID, event.AccountID, event.TokenID,
		event.ResourceType, event.ResourceID, event.ResourceName,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Method, event.Path, event.StatusCode,
		event.Message, event.ErrorMessage, metadataJSON, changesJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*AuditEvent, error) {
	event := &AuditEvent{Metadata: make(map[string]interface{})}
	var metadataJSON, changesJSON []byte

	err := row.Scan(
		&event.ID, &event.Timestamp, &event.EventType, &event.Status,
		&event.UserID, &event.TenantID, &event.AccountID, &event.TokenID,
		&event.ResourceType, &event.ResourceID, &event.ResourceName,
		&event.IPAddress, &event.UserAgent, &event.RequestID,
		&event.Method, &event.Path, &event.StatusCode,
		&event.Message, &event.ErrorMessage, &metadataJSON, &changesJSON,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if len(changesJSON) > 0 {
		event.Changes = &ChangeDetails{}
		if err := json.Unmarshal(changesJSON, event.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
		}
	}
	return event, nil
}

// sortColumns is the allowlist for user-supplied sort fields.
var sortColumns = map[string]bool{
	"timestamp":  true,
	"event_type": true,
	"status":     true,
	"user_id":    true,
	"tenant_id":  true,
}

// Search returns events matching the filter, newest first unless the
// filter says otherwise.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	conds := []string{"1=1"}
	args := []interface{}{}

	addCond := func(expr string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}

	if filter.StartTime != nil {
		addCond("timestamp >= $%d", *filter.StartTime)
	}
	if filter.EndTime != nil {
		addCond("timestamp <= $%d", *filter.EndTime)
	}
	if filter.UserID != "" {
		addCond("user_id = $%d", filter.UserID)
	}
	if filter.TenantID != "" {
		addCond("tenant_id = $%d", filter.TenantID)
	}
	if filter.AccountID != "" {
		addCond("account_id = $%d", filter.AccountID)
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			types[i] = string(et)
		}
		addCond("event_type = ANY($%d)", pq.Array(types))
	}
	if filter.Status != nil {
		addCond("status = $%d", string(*filter.Status))
	}
	if filter.ResourceType != "" {
		addCond("resource_type = $%d", string(filter.ResourceType))
	}
	if filter.ResourceID != "" {
		addCond("resource_id = $%d", filter.ResourceID)
	}
	if filter.IPAddress != "" {
		addCond("ip_address = $%d", filter.IPAddress)
	}
	if filter.Method != "" {
		addCond("method = $%d", filter.Method)
	}
	if filter.Path != "" {
		addCond("path LIKE $%d", "%"+filter.Path+"%")
	}

	query := fmt.Sprintf("SELECT %s FROM audit_logs WHERE %s",
		eventColumns, strings.Join(conds, " AND "))

	// Sort fields come from the request, so only known columns pass.
	sortBy := "timestamp"
	if sortColumns[filter.SortBy] {
		sortBy = filter.SortBy
	}
	order := "DESC"
	if filter.SortOrder == "asc" {
		order = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, order)

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}
	return events, nil
}

// Get returns one event by ID, or nil when no such event exists.
func (l *DBLogger) Get(ctx context.Context, id int64) (*AuditEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM audit_logs WHERE id = $1", eventColumns)

	event, err := scanEvent(l.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log %d: %w", id, err)
	}
	return event, nil
}

// GetStats aggregates the trail over an optional time range.
func (l *DBLogger) GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error) {
	stats := &AuditStats{
		EventsByType:     make(map[EventType]int64),
		EventsByStatus:   make(map[EventStatus]int64),
		EventsByTenant:   make(map[string]int64),
		EventsByResource: make(map[ResourceType]int64),
	}

	whereClause := "WHERE 1=1"
	args := []interface{}{}

	if startTime != nil {
		args = append(args, *startTime)
		whereClause += fmt.Sprintf(" AND timestamp >= $%d", len(args))
		stats.TimeRange = &TimeRange{Start: *startTime}
	}
	if endTime != nil {
		args = append(args, *endTime)
		whereClause += fmt.Sprintf(" AND timestamp <= $%d", len(args))
		if stats.TimeRange == nil {
			stats.TimeRange = &TimeRange{}
		}
		stats.TimeRange.End = *endTime
	}

	countInto := func(dest *int64, extraClause string) error {
		query := fmt.Sprintf("SELECT COUNT(*) FROM audit_logs %s%s", whereClause, extraClause)
		return l.db.QueryRowContext(ctx, query, args...).Scan(dest)
	}

	if err := countInto(&stats.TotalEvents, ""); err != nil {
		return nil, fmt.Errorf("failed to get total events: %w", err)
	}

	groupInto := func(column string, record func(key string, count int64)) error {
		query := fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_logs %s GROUP BY %s",
			column, whereClause, column)
		rows, err := l.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			var count int64
			if err := rows.Scan(&key, &count); err != nil {
				return err
			}
			record(key, count)
		}
		return rows.Err()
	}

	if err := groupInto("event_type", func(key string, count int64) {
		stats.EventsByType[EventType(key)] = count
	}); err != nil {
		return nil, fmt.Errorf("failed to get events by type: %w", err)
	}
	if err := groupInto("status", func(key string, count int64) {
		stats.EventsByStatus[EventStatus(key)] = count
	}); err != nil {
		return nil, fmt.Errorf("failed to get events by status: %w", err)
	}

	if err := l.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(DISTINCT user_id) FROM audit_logs %s AND user_id IS NOT NULL", whereClause),
		args...).Scan(&stats.UniqueUsers); err != nil {
		return nil, fmt.Errorf("failed to get unique users: %w", err)
	}
	if err := l.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(DISTINCT ip_address) FROM audit_logs %s AND ip_address IS NOT NULL", whereClause),
		args...).Scan(&stats.UniqueIPs); err != nil {
		return nil, fmt.Errorf("failed to get unique IPs: %w", err)
	}

	if err := countInto(&stats.FailedAuthAttempts, " AND event_type LIKE 'auth.%' AND status = 'failure'"); err != nil {
		return nil, fmt.Errorf("failed to get failed auth attempts: %w", err)
	}
	if err := countInto(&stats.AccessDenials, " AND status = 'denied'"); err != nil {
		return nil, fmt.Errorf("failed to get access denials: %w", err)
	}

	return stats, nil
}

// Close is a no-op: the connection pool is shared with the rest of the
// service and owned by the caller.
func (l *DBLogger) Close() error {
	return nil
}
