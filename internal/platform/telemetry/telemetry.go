package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ShutdownFunc releases telemetry resources.
type ShutdownFunc func(ctx context.Context) error

// Setup initializes OpenTelemetry with a Prometheus exporter.
// Returns a shutdown function that must be called on exit.
func Setup(ctx context.Context, serviceName string) (ShutdownFunc, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// PortalMetrics holds all OTel instruments for the portal.
type PortalMetrics struct {
	httpRequestsTotal   otelmetric.Int64Counter
	httpRequestDuration otelmetric.Float64Histogram
	gateDecisionsTotal  otelmetric.Int64Counter
	loginsTotal         otelmetric.Int64Counter
	backendRequests     otelmetric.Int64Counter
	backendDuration     otelmetric.Float64Histogram
	permissionSaves     otelmetric.Int64Counter
}

// NewPortalMetrics creates and registers all portal metrics.
func NewPortalMetrics() (*PortalMetrics, error) {
	meter := otel.Meter("portal")
	m := &PortalMetrics{}
	var err error

	latencyBuckets := otelmetric.WithExplicitBucketBoundaries(
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
	)

	if m.httpRequestsTotal, err = meter.Int64Counter("portal_http_requests_total",
		otelmetric.WithDescription("Total HTTP requests")); err != nil {
		return nil, fmt.Errorf("creating http_requests_total: %w", err)
	}
	if m.httpRequestDuration, err = meter.Float64Histogram("portal_http_request_duration_seconds",
		otelmetric.WithDescription("HTTP request duration"), latencyBuckets); err != nil {
		return nil, fmt.Errorf("creating http_request_duration: %w", err)
	}
	if m.gateDecisionsTotal, err = meter.Int64Counter("portal_gate_decisions_total",
		otelmetric.WithDescription("Access gate decisions on protected paths")); err != nil {
		return nil, fmt.Errorf("creating gate_decisions_total: %w", err)
	}
	if m.loginsTotal, err = meter.Int64Counter("portal_logins_total",
		otelmetric.WithDescription("Sign-in attempts")); err != nil {
		return nil, fmt.Errorf("creating logins_total: %w", err)
	}
	if m.backendRequests, err = meter.Int64Counter("portal_backend_requests_total",
		otelmetric.WithDescription("Total backend API calls")); err != nil {
		return nil, fmt.Errorf("creating backend_requests_total: %w", err)
	}
	if m.backendDuration, err = meter.Float64Histogram("portal_backend_duration_seconds",
		otelmetric.WithDescription("Backend API call duration"), latencyBuckets); err != nil {
		return nil, fmt.Errorf("creating backend_duration: %w", err)
	}
	if m.permissionSaves, err = meter.Int64Counter("portal_permission_saves_total",
		otelmetric.WithDescription("Role permission saves")); err != nil {
		return nil, fmt.Errorf("creating permission_saves_total: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric.
func (m *PortalMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, durationSec float64) {
	attrs := otelmetric.WithAttributes(
		methodAttr(method),
		routeAttr(route),
		statusAttr(status),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, durationSec, attrs)
}

// RecordGateDecision records an access gate outcome ("allow" or "redirect").
func (m *PortalMetrics) RecordGateDecision(ctx context.Context, result string) {
	m.gateDecisionsTotal.Add(ctx, 1, otelmetric.WithAttributes(resultAttr(result)))
}

// RecordLogin records a sign-in outcome.
func (m *PortalMetrics) RecordLogin(ctx context.Context, result string) {
	m.loginsTotal.Add(ctx, 1, otelmetric.WithAttributes(resultAttr(result)))
}

// RecordBackendRequest records a call to the backend API. status is 0 on
// transport failure.
func (m *PortalMetrics) RecordBackendRequest(ctx context.Context, operation string, status int, durationSec float64) {
	attrs := otelmetric.WithAttributes(
		operationAttr(operation),
		statusAttr(status),
	)
	m.backendRequests.Add(ctx, 1, attrs)
	m.backendDuration.Record(ctx, durationSec, attrs)
}

// RecordPermissionSave records the outcome of a role permission save.
func (m *PortalMetrics) RecordPermissionSave(ctx context.Context, result string) {
	m.permissionSaves.Add(ctx, 1, otelmetric.WithAttributes(resultAttr(result)))
}
