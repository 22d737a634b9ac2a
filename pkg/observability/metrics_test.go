package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}

		// Verify HTTP metrics are initialized
		if metrics.HTTPRequestsTotal == nil {
			t.Error("HTTPRequestsTotal is nil")
		}
		if metrics.HTTPRequestDuration == nil {
			t.Error("HTTPRequestDuration is nil")
		}
		if metrics.HTTPRequestSize == nil {
			t.Error("HTTPRequestSize is nil")
		}
		if metrics.HTTPResponseSize == nil {
			t.Error("HTTPResponseSize is nil")
		}

		// Verify Authorization metrics are initialized
		if metrics.PermissionChecksTotal == nil {
			t.Error("PermissionChecksTotal is nil")
		}
		if metrics.TierChecksTotal == nil {
			t.Error("TierChecksTotal is nil")
		}
		if metrics.ContextChecksTotal == nil {
			t.Error("ContextChecksTotal is nil")
		}
		if metrics.SuperAdminBypassTotal == nil {
			t.Error("SuperAdminBypassTotal is nil")
		}
		if metrics.TokenValidationsTotal == nil {
			t.Error("TokenValidationsTotal is nil")
		}

		// Verify Cache metrics are initialized
		if metrics.CacheHitsTotal == nil {
			t.Error("CacheHitsTotal is nil")
		}
		if metrics.CacheMissesTotal == nil {
			t.Error("CacheMissesTotal is nil")
		}
		if metrics.CacheEvictionsTotal == nil {
			t.Error("CacheEvictionsTotal is nil")
		}

		// Verify Database metrics are initialized
		if metrics.DBConnectionsActive == nil {
			t.Error("DBConnectionsActive is nil")
		}
		if metrics.DBConnectionsIdle == nil {
			t.Error("DBConnectionsIdle is nil")
		}
		if metrics.DBConnectionsWaitCount == nil {
			t.Error("DBConnectionsWaitCount is nil")
		}
		if metrics.DBConnectionsWaitDuration == nil {
			t.Error("DBConnectionsWaitDuration is nil")
		}

		// Verify Redis metrics are initialized
		if metrics.RedisConnectionsActive == nil {
			t.Error("RedisConnectionsActive is nil")
		}
		if metrics.RedisCommandsTotal == nil {
			t.Error("RedisCommandsTotal is nil")
		}
		if metrics.RedisCommandDuration == nil {
			t.Error("RedisCommandDuration is nil")
		}

		// Verify Business metrics are initialized
		if metrics.TenantsTotal == nil {
			t.Error("TenantsTotal is nil")
		}
		if metrics.AccountsTotal == nil {
			t.Error("AccountsTotal is nil")
		}
		if metrics.RolesTotal == nil {
			t.Error("RolesTotal is nil")
		}
		if metrics.ActiveUsersTotal == nil {
			t.Error("ActiveUsersTotal is nil")
		}
		if metrics.APITokensActive == nil {
			t.Error("APITokensActive is nil")
		}
	})

	t.Run("metrics are registered with registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		// Initialize some metrics to make them appear in Gather()
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Add(0)
		metrics.PermissionChecksTotal.WithLabelValues("tenant.users.read", "true", "tenant").Add(0)
		metrics.TierChecksTotal.WithLabelValues("account", "true").Add(0)
		metrics.CacheHitsTotal.WithLabelValues("redis", "user_roles").Add(0)
		metrics.DBConnectionsActive.Set(0)
		metrics.RedisConnectionsActive.Set(0)
		metrics.TenantsTotal.Set(0)

		families, err := registry.Gather()
		if err != nil {
			t.Fatalf("Failed to gather metrics: %v", err)
		}

		if len(families) == 0 {
			t.Error("No metrics registered in registry")
		}

		metricNames := make(map[string]bool)
		for _, family := range families {
			metricNames[family.GetName()] = true
		}

		expectedMetrics := []string{
			"greenroom_http_requests_total",
			"greenroom_permission_checks_total",
			"greenroom_tier_checks_total",
			"greenroom_cache_hits_total",
			"greenroom_db_connections_active",
			"greenroom_redis_connections_active",
			"greenroom_tenants_total",
		}

		for _, name := range expectedMetrics {
			if !metricNames[name] {
				t.Errorf("Expected metric %s not found in registry", name)
			}
		}
	})
}

func TestRecordPermissionCheck(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.RecordPermissionCheck("tenant.users.read", true, "tenant")
	metrics.RecordPermissionCheck("tenant.users.read", true, "tenant")
	metrics.RecordPermissionCheck("platform.tenants.manage", false, "platform")

	expected := `
# HELP greenroom_permission_checks_total Total number of permission checks
# TYPE greenroom_permission_checks_total counter
greenroom_permission_checks_total{granted="true",permission="tenant.users.read",tier="tenant"} 2
greenroom_permission_checks_total{granted="false",permission="platform.tenants.manage",tier="platform"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "greenroom_permission_checks_total"); err != nil {
		t.Errorf("Unexpected permission check metrics: %v", err)
	}
}

func TestRecordTierCheck(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.RecordTierCheck("account", true)
	metrics.RecordTierCheck("platform", false)

	expected := `
# HELP greenroom_tier_checks_total Total number of tier checks
# TYPE greenroom_tier_checks_total counter
greenroom_tier_checks_total{allowed="true",required_tier="account"} 1
greenroom_tier_checks_total{allowed="false",required_tier="platform"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "greenroom_tier_checks_total"); err != nil {
		t.Errorf("Unexpected tier check metrics: %v", err)
	}
}

func TestRecordContextCheck(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.RecordContextCheck("tenant", "allowed")
	metrics.RecordContextCheck("account", "denied")
	metrics.RecordContextCheck("account", "skipped")

	expected := `
# HELP greenroom_context_checks_total Total number of scope context checks
# TYPE greenroom_context_checks_total counter
greenroom_context_checks_total{outcome="allowed",scope="tenant"} 1
greenroom_context_checks_total{outcome="denied",scope="account"} 1
greenroom_context_checks_total{outcome="skipped",scope="account"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "greenroom_context_checks_total"); err != nil {
		t.Errorf("Unexpected context check metrics: %v", err)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Run("records request metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("hello"))
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rec.Code)
		}

		expected := `
# HELP greenroom_http_requests_total Total number of HTTP requests
# TYPE greenroom_http_requests_total counter
greenroom_http_requests_total{method="GET",path="/api/test",status="200"} 1
`
		if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "greenroom_http_requests_total"); err != nil {
			t.Errorf("Unexpected HTTP request metrics: %v", err)
		}
	})

	t.Run("records error status codes", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "denied", http.StatusForbidden)
		}))

		req := httptest.NewRequest(http.MethodPost, "/tenant/users", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		expected := `
# HELP greenroom_http_requests_total Total number of HTTP requests
# TYPE greenroom_http_requests_total counter
greenroom_http_requests_total{method="POST",path="/tenant/users",status="403"} 1
`
		if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "greenroom_http_requests_total"); err != nil {
			t.Errorf("Unexpected HTTP request metrics: %v", err)
		}
	})
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.TenantsTotal.Set(42)

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	if !strings.Contains(string(body), "greenroom_tenants_total 42") {
		t.Error("Metrics endpoint output missing greenroom_tenants_total")
	}
}
