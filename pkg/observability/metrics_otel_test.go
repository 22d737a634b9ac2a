package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupTestMeterProvider creates a test meter provider with a manual reader
func setupTestMeterProvider(t *testing.T) (*metric.MeterProvider, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(provider)
	return provider, reader
}

func collectMetricNames(t *testing.T, reader *metric.ManualReader) map[string]bool {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}

	names := make(map[string]bool)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			names[m.Name] = true
		}
	}
	return names
}

func TestNewOTelMetrics(t *testing.T) {
	t.Run("successful initialization", func(t *testing.T) {
		provider, _ := setupTestMeterProvider(t)
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				t.Logf("Error shutting down provider: %v", err)
			}
		}()

		m, err := NewOTelMetrics()
		if err != nil {
			t.Fatalf("NewOTelMetrics() error = %v, want nil", err)
		}

		if m == nil {
			t.Fatal("NewOTelMetrics() returned nil metrics")
		}

		// Verify that all metric instruments are initialized
		if m.httpRequestsTotal == nil {
			t.Error("httpRequestsTotal is nil")
		}
		if m.httpRequestDuration == nil {
			t.Error("httpRequestDuration is nil")
		}
		if m.httpRequestSize == nil {
			t.Error("httpRequestSize is nil")
		}
		if m.httpResponseSize == nil {
			t.Error("httpResponseSize is nil")
		}
		if m.permissionChecksTotal == nil {
			t.Error("permissionChecksTotal is nil")
		}
		if m.tierChecksTotal == nil {
			t.Error("tierChecksTotal is nil")
		}
		if m.tokenValidationsTotal == nil {
			t.Error("tokenValidationsTotal is nil")
		}
		if m.dbConnectionsActive == nil {
			t.Error("dbConnectionsActive is nil")
		}
		if m.dbConnectionsIdle == nil {
			t.Error("dbConnectionsIdle is nil")
		}
		if m.dbConnectionsMax == nil {
			t.Error("dbConnectionsMax is nil")
		}
		if m.dbQueryDuration == nil {
			t.Error("dbQueryDuration is nil")
		}
		if m.dbQueriesTotal == nil {
			t.Error("dbQueriesTotal is nil")
		}
		if m.cacheHitsTotal == nil {
			t.Error("cacheHitsTotal is nil")
		}
		if m.cacheMissesTotal == nil {
			t.Error("cacheMissesTotal is nil")
		}
		if m.cacheEvictionsTotal == nil {
			t.Error("cacheEvictionsTotal is nil")
		}
		if m.cacheSize == nil {
			t.Error("cacheSize is nil")
		}
	})
}

func TestOTelMetrics_RecordHTTPRequest(t *testing.T) {
	provider, reader := setupTestMeterProvider(t)
	defer provider.Shutdown(context.Background())

	m, err := NewOTelMetrics()
	if err != nil {
		t.Fatalf("NewOTelMetrics() error = %v", err)
	}

	ctx := context.Background()
	m.RecordHTTPRequest(ctx, "GET", "/tenants", 200, 100*time.Millisecond, 0, 1024)
	m.RecordHTTPRequest(ctx, "POST", "/tenants", 403, 50*time.Millisecond, 512, 64)

	names := collectMetricNames(t, reader)
	for _, want := range []string{"http.server.requests", "http.server.duration", "http.server.response.size"} {
		if !names[want] {
			t.Errorf("Expected metric %s to be recorded", want)
		}
	}
}

func TestOTelMetrics_RecordAuthorizationChecks(t *testing.T) {
	provider, reader := setupTestMeterProvider(t)
	defer provider.Shutdown(context.Background())

	m, err := NewOTelMetrics()
	if err != nil {
		t.Fatalf("NewOTelMetrics() error = %v", err)
	}

	ctx := context.Background()
	m.RecordPermissionCheck(ctx, "tenant.users.read", true)
	m.RecordPermissionCheck(ctx, "platform.tenants.manage", false)
	m.RecordTierCheck(ctx, "account", true)
	m.RecordTokenValidation(ctx, "valid")
	m.RecordTokenValidation(ctx, "expired")

	names := collectMetricNames(t, reader)
	for _, want := range []string{"authz.permission.checks", "authz.tier.checks", "authz.token.validations"} {
		if !names[want] {
			t.Errorf("Expected metric %s to be recorded", want)
		}
	}
}

func TestOTelMetrics_RecordDBQuery(t *testing.T) {
	provider, reader := setupTestMeterProvider(t)
	defer provider.Shutdown(context.Background())

	m, err := NewOTelMetrics()
	if err != nil {
		t.Fatalf("NewOTelMetrics() error = %v", err)
	}

	ctx := context.Background()
	m.RecordDBQuery(ctx, "select_roles", 5*time.Millisecond, nil)
	m.RecordDBQuery(ctx, "insert_token", 10*time.Millisecond, errors.New("constraint violation"))

	names := collectMetricNames(t, reader)
	for _, want := range []string{"db.queries.total", "db.query.duration"} {
		if !names[want] {
			t.Errorf("Expected metric %s to be recorded", want)
		}
	}
}

func TestOTelMetrics_RecordCacheEvents(t *testing.T) {
	provider, reader := setupTestMeterProvider(t)
	defer provider.Shutdown(context.Background())

	m, err := NewOTelMetrics()
	if err != nil {
		t.Fatalf("NewOTelMetrics() error = %v", err)
	}

	ctx := context.Background()
	m.RecordCacheHit(ctx, "redis")
	m.RecordCacheMiss(ctx, "redis")
	m.RecordCacheEviction(ctx, "lru")
	m.UpdateCacheSize(ctx, "lru", 2048)

	names := collectMetricNames(t, reader)
	for _, want := range []string{"cache.hits.total", "cache.misses.total", "cache.evictions.total", "cache.size"} {
		if !names[want] {
			t.Errorf("Expected metric %s to be recorded", want)
		}
	}
}
