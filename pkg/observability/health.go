package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// probeTimeout bounds the whole readiness check; a hung dependency
// must not hang the probe endpoint.
const probeTimeout = 5 * time.Second

// DependencyStatus is the outcome of probing one collaborator
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthStatus aggregates the per-dependency probes
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// probe checks one collaborator. required marks dependencies the
// service cannot authorize without; optional ones only degrade.
type probe struct {
	name     string
	required bool
	check    func(ctx context.Context) DependencyStatus
}

// HealthChecker probes the collaborators authorization depends on:
// Postgres holds roles, tokens and the audit trail, so losing it means
// the service cannot decide anything (fail-closed, unhealthy). Redis
// only caches grants and rate-limit windows, so losing it degrades.
type HealthChecker struct {
	probes []probe
}

// NewHealthChecker builds a checker for the given collaborators.
// redis may be nil when the deployment runs without a cache.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	h := &HealthChecker{}
	if db != nil {
		h.probes = append(h.probes, probe{
			name:     "postgres",
			required: true,
			check:    func(ctx context.Context) DependencyStatus { return probePostgres(ctx, db) },
		})
	}
	if redisClient != nil {
		h.probes = append(h.probes, probe{
			name:  "redis",
			check: func(ctx context.Context) DependencyStatus { return probeRedis(ctx, redisClient) },
		})
	}
	return h
}

// Check runs every probe and aggregates: a failed required dependency
// makes the service unhealthy, anything else at most degraded.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Dependencies: make(map[string]DependencyStatus),
	}

	for _, p := range h.probes {
		dep := p.check(ctx)
		status.Dependencies[p.name] = dep

		switch {
		case dep.Status == StatusUnhealthy && p.required:
			status.Status = StatusUnhealthy
		case dep.Status != StatusHealthy && status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}
	return status
}

// Liveness reports only that the process serves requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness runs the dependency probes; 503 only when a required
// dependency is down, degraded still serves.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

func probePostgres(ctx context.Context, db *sql.DB) DependencyStatus {
	start := time.Now()
	dep := DependencyStatus{Status: StatusHealthy, Timestamp: start}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
		dep.Latency = time.Since(start)
		return dep
	}
	dep.Latency = time.Since(start)

	// A saturated pool means authorization decisions are queueing.
	stats := db.Stats()
	if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
		dep.Status = StatusDegraded
		dep.Message = "connection pool exhausted"
	}
	return dep
}

func probeRedis(ctx context.Context, client *redis.Client) DependencyStatus {
	start := time.Now()
	dep := DependencyStatus{Status: StatusHealthy, Timestamp: start}

	if err := client.Ping(ctx).Err(); err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	dep.Latency = time.Since(start)
	return dep
}

// RegisterHealthRoutes mounts the probe endpoints on the health mux
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
