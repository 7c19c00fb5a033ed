package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

func TestLifecycleMetricsStatusGaugeZeroesMissingStatuses(t *testing.T) {
	m := NewLifecycleMetrics("api", nil)

	m.SetStatusCounts(map[domain.DocumentStatus]int{domain.StatusInbox: 3, domain.StatusDeleted: 1})
	m.SetStatusCounts(map[domain.DocumentStatus]int{domain.StatusInbox: 2})

	if got := value(t, m.documents.WithLabelValues("api", "inbox")); got != 2 {
		t.Fatalf("inbox gauge = %v, want 2", got)
	}
	if got := value(t, m.documents.WithLabelValues("api", "deleted")); got != 0 {
		t.Fatalf("deleted gauge = %v, want 0", got)
	}
}

func TestLifecycleMetricsSweepCountsAffectedAndErrors(t *testing.T) {
	m := NewLifecycleMetrics("api", nil)

	m.ObserveSweep("retention_purge", time.Millisecond, 4, nil)
	m.ObserveSweep("retention_purge", time.Millisecond, 0, errors.New("list failed"))

	if got := value(t, m.sweepAffectedTotal.WithLabelValues("api", "retention_purge")); got != 4 {
		t.Fatalf("affected = %v, want 4", got)
	}
	if got := value(t, m.sweepRunsTotal.WithLabelValues("api", "retention_purge", "error")); got != 1 {
		t.Fatalf("error runs = %v, want 1", got)
	}
}

func TestLifecycleMetricsBreakerGauge(t *testing.T) {
	m := NewLifecycleMetrics("api", nil)

	m.ObserveBreakerState("classifier.classify", "closed", "open")
	if got := value(t, m.breakerOpen.WithLabelValues("api", "classifier.classify")); got != 1 {
		t.Fatalf("breaker gauge = %v, want 1", got)
	}
	m.ObserveBreakerState("classifier.classify", "half-open", "closed")
	if got := value(t, m.breakerOpen.WithLabelValues("api", "classifier.classify")); got != 0 {
		t.Fatalf("breaker gauge = %v, want 0", got)
	}
}

func TestSharedRegistryServesHTTPAndLifecycleMetrics(t *testing.T) {
	httpMetrics := NewHTTPServerMetrics("api")
	lifecycle := NewLifecycleMetrics("api", httpMetrics.Registry())
	lifecycle.ObserveTransition(domain.StatusInbox, domain.StatusProcessed)

	handler := httpMetrics.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/documents/doc-1", nil))

	rec := httptest.NewRecorder()
	httpMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`scan_triage_lifecycle_transitions_total{from="inbox",service="api",to="processed"} 1`,
		`scan_triage_http_requests_total{method="GET",path="/documents/{id}",service="api",status="404"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/documents":              "/documents",
		"/documents/next":         "/documents/next",
		"/documents/export":       "/documents/export",
		"/documents/abc":          "/documents/{id}",
		"/documents/abc/classify": "/documents/{id}/classify",
		"/documents/abc/events":   "/documents/{id}/events",
		"/upload":                 "/upload",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func value(t *testing.T, metric prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := metric.Write(&out); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	switch {
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	case out.Counter != nil:
		return out.Counter.GetValue()
	default:
		t.Fatalf("unsupported metric type")
		return 0
	}
}
