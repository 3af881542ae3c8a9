package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the application metrics:
// - serve mode HTTP traffic
// - calls made to the job manager
// - deployments and savepoints
// - notification delivery
type Metrics struct {
	meter metric.Meter

	// Serve mode HTTP metrics
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job manager control API
	RemoteCallDuration metric.Float64Histogram
	RemoteCallsTotal   metric.Int64Counter
	RemoteErrorsTotal  metric.Int64Counter

	// Deployments
	DeploymentDuration    metric.Float64Histogram
	DeploymentsTotal      metric.Int64Counter
	DeploymentErrorsTotal metric.Int64Counter
	DeploymentsActive     metric.Int64UpDownCounter
	SavepointDuration     metric.Float64Histogram

	// Notifications
	NotifyDuration  metric.Float64Histogram
	NotifyDelivered metric.Int64Counter
	NotifyFailed    metric.Int64Counter
	NotifyDropped   metric.Int64Counter
	NotifyQueueSize metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("flinkctl")
	m := &Metrics{meter: meter}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RemoteCallDuration, err = meter.Float64Histogram(
		"jobmanager_call_duration_seconds",
		metric.WithDescription("Job manager control API latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RemoteCallsTotal, err = meter.Int64Counter(
		"jobmanager_calls_total",
		metric.WithDescription("Total number of job manager control API calls"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RemoteErrorsTotal, err = meter.Int64Counter(
		"jobmanager_errors_total",
		metric.WithDescription("Job manager calls that failed or returned a non-2xx status"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DeploymentDuration, err = meter.Float64Histogram(
		"deployment_duration_seconds",
		metric.WithDescription("End-to-end deployment duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DeploymentsTotal, err = meter.Int64Counter(
		"deployments_total",
		metric.WithDescription("Total number of finished deployments"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DeploymentErrorsTotal, err = meter.Int64Counter(
		"deployment_errors_total",
		metric.WithDescription("Total number of failed deployments"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DeploymentsActive, err = meter.Int64UpDownCounter(
		"deployments_active",
		metric.WithDescription("Number of deployments in progress (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SavepointDuration, err = meter.Float64Histogram(
		"savepoint_duration_seconds",
		metric.WithDescription("Time from savepoint trigger to a terminal status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 20, 40, 60, 120, 300),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDuration, err = meter.Float64Histogram(
		"notify_duration_seconds",
		metric.WithDescription("Notification delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDelivered, err = meter.Int64Counter(
		"notify_delivered_total",
		metric.WithDescription("Total notifications successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyFailed, err = meter.Int64Counter(
		"notify_failed_total",
		metric.WithDescription("Total notifications failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDropped, err = meter.Int64Counter(
		"notify_dropped_total",
		metric.WithDescription("Total notifications dropped (buffer full or open circuit)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyQueueSize, err = meter.Int64Gauge(
		"notify_queue_size",
		metric.WithDescription("Current number of queued notifications (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records serve mode request metrics. Route is the matched
// router pattern.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		routeAttr(route),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordRemoteCall records one job manager call. A zero statusCode means the
// request never got a response.
func (m *Metrics) RecordRemoteCall(ctx context.Context, route string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(routeAttr(route), statusAttr(statusCode))

	m.RemoteCallDuration.Record(ctx, durationSeconds, attrs)
	m.RemoteCallsTotal.Add(ctx, 1, attrs)

	if statusCode <= 0 || statusCode >= 400 {
		m.RemoteErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordDeploymentStarted marks a deployment as in progress.
func (m *Metrics) RecordDeploymentStarted(ctx context.Context, mode string) {
	m.DeploymentsActive.Add(ctx, 1, metric.WithAttributes(modeAttr(mode)))
}

// RecordDeployment records a finished deployment.
func (m *Metrics) RecordDeployment(ctx context.Context, mode string, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(modeAttr(mode), successAttr(success))
	m.DeploymentDuration.Record(ctx, durationSeconds, attrs)
	m.DeploymentsTotal.Add(ctx, 1, attrs)
	m.DeploymentsActive.Add(ctx, -1, metric.WithAttributes(modeAttr(mode)))

	if !success {
		m.DeploymentErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordSavepoint records the time a savepoint took to reach a terminal status.
func (m *Metrics) RecordSavepoint(ctx context.Context, success bool, durationSeconds float64) {
	m.SavepointDuration.Record(ctx, durationSeconds, metric.WithAttributes(successAttr(success)))
}

// RecordNotifyDelivered records a successful notification with its duration.
func (m *Metrics) RecordNotifyDelivered(ctx context.Context, durationSeconds float64) {
	m.NotifyDelivered.Add(ctx, 1)
	m.NotifyDuration.Record(ctx, durationSeconds)
}

// RecordNotifyFailed records a notification that exhausted its retries.
func (m *Metrics) RecordNotifyFailed(ctx context.Context) {
	m.NotifyFailed.Add(ctx, 1)
}

// RecordNotifyDropped records a dropped notification.
func (m *Metrics) RecordNotifyDropped(ctx context.Context) {
	m.NotifyDropped.Add(ctx, 1)
}

// RecordNotifyQueueSize records the current queue size.
func (m *Metrics) RecordNotifyQueueSize(ctx context.Context, size int64) {
	m.NotifyQueueSize.Record(ctx, size)
}
