// Package audit provides tamper-evident audit logging for security-relevant events.
//
// # Overview
//
// Every authentication, authorization, and administrative action produces an
// AuditEvent. Events carry the acting user, the tenant and account scope, the
// resource touched, and the outcome. Loggers are composable: the database
// logger is the durable trail, the logrus logger ships events to the log
// pipeline, and the file logger writes NDJSON for air-gapped review.
//
// # Usage
//
//	dbLogger, err := audit.NewDBLogger(db)
//	logger := audit.NewMultiLogger(dbLogger, audit.NewLogrusLogger(os.Stdout))
//
//	logger.LogAuthorization(ctx, audit.EventTypeAuthzAccessDenied, userID,
//		audit.ResourceTypePermission, "tenant.members.update",
//		audit.EventStatusDenied, "no matching role pattern")
//
// # Querying
//
// DBStore exposes search, stats, export (JSON, CSV, NDJSON), and retention
// cleanup over the database trail. Handlers mounts the read API under /audit.
package audit
