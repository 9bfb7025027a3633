package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers. A nil or disabled
// Telemetry is safe to use: every method becomes a no-op.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	exporter       *prometheus.Exporter

	// RED Metrics (Rate, Errors, Duration) for the status server
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Business Metrics
	transfersTotal         metric.Int64Counter
	transfersActive        metric.Int64UpDownCounter
	transferDuration       metric.Float64Histogram
	partAttemptsTotal      metric.Int64Counter
	partBytesTotal         metric.Int64Counter
	protocolOperations     metric.Int64Counter
	protocolErrors         metric.Int64Counter
	protocolOperationTimes metric.Float64Histogram
	dbOperationsTotal      metric.Int64Counter
	dbOperationDuration    metric.Float64Histogram

	// System health
	systemErrors metric.Int64Counter
	systemUptime metric.Float64Gauge
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// OTLPEndpoint, when set, additionally pushes metrics over OTLP/gRPC.
	OTLPEndpoint string
	OTLPInsecure bool
	OTLPInterval time.Duration
}

// New creates a new telemetry instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	// Create Prometheus exporter
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	opts := []sdkmetric.Option{sdkmetric.WithReader(exporter), sdkmetric.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		reader, err := newOTLPReader(ctx, cfg)
		if err != nil {
			return nil, err
		}

		opts = append(opts, sdkmetric.WithReader(reader))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)

	otel.SetMeterProvider(meterProvider)

	// Spans are not exported; the provider only mints ids so logs can be correlated.
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tracerProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
		exporter:       exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	go t.collectSystemMetrics(ctx)

	return t, nil
}

func newOTLPReader(ctx context.Context, cfg Config) (sdkmetric.Reader, error) {
	exporterOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
	}

	interval := cfg.OTLPInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)), nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.Tracer("")
	}

	return t.tracer
}

// Enabled reports whether instruments were created.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.meterProvider != nil
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration) {
	if !t.Enabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)

	t.httpRequestsTotal.Add(ctx, 1, attrs)
	t.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// AddHTTPInFlight moves the in-flight HTTP request gauge by delta.
func (t *Telemetry) AddHTTPInFlight(ctx context.Context, delta int64) {
	if !t.Enabled() {
		return
	}

	t.httpRequestsInFlight.Add(ctx, delta)
}

// RecordTransfer records the outcome of a whole session.
func (t *Telemetry) RecordTransfer(ctx context.Context, direction, status string, duration time.Duration) {
	if !t.Enabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("status", status),
	)

	t.transfersTotal.Add(ctx, 1, attrs)
	t.transferDuration.Record(ctx, duration.Seconds(), attrs)
}

// AddActiveTransfers moves the active transfers gauge by delta.
func (t *Telemetry) AddActiveTransfers(ctx context.Context, direction string, delta int64) {
	if !t.Enabled() {
		return
	}

	t.transfersActive.Add(ctx, delta, metric.WithAttributes(attribute.String("direction", direction)))
}

// RecordPartAttempt records a single part upload attempt. bytes is only
// counted for successful attempts.
func (t *Telemetry) RecordPartAttempt(ctx context.Context, protocol, status string, attempt int, bytes int64) {
	if !t.Enabled() {
		return
	}

	kind := "first"
	if attempt > 0 {
		kind = "retry"
	}

	t.partAttemptsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("protocol", protocol),
		attribute.String("status", status),
		attribute.String("attempt", kind),
	))

	if status == "success" {
		t.partBytesTotal.Add(ctx, bytes, metric.WithAttributes(attribute.String("protocol", protocol)))
	}
}

// RecordProtocolOperation records a boundary protocol call.
func (t *Telemetry) RecordProtocolOperation(ctx context.Context, protocol, operation, status string, duration time.Duration) {
	if !t.Enabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("protocol", protocol),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	t.protocolOperations.Add(ctx, 1, attrs)
	t.protocolOperationTimes.Record(ctx, duration.Seconds(), attrs)

	if status == "error" {
		t.protocolErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("protocol", protocol),
			attribute.String("operation", operation),
		))
	}
}

// RecordDBOperation records database operation metrics.
func (t *Telemetry) RecordDBOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if !t.Enabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	t.dbOperationsTotal.Add(ctx, 1, attrs)
	t.dbOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(ctx context.Context, component, errorType string) {
	if !t.Enabled() {
		return
	}

	t.systemErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("error_type", errorType),
	))
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}

	return errors.Join(t.tracerProvider.Shutdown(ctx), t.meterProvider.Shutdown(ctx))
}

func (t *Telemetry) initializeMetrics() error {
	var errs []error

	counter := func(name, desc string) metric.Int64Counter {
		c, err := t.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("1"))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to create %s counter: %w", name, err))
		}

		return c
	}

	histogram := func(name, desc string) metric.Float64Histogram {
		h, err := t.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to create %s histogram: %w", name, err))
		}

		return h
	}

	upDown := func(name, desc string) metric.Int64UpDownCounter {
		c, err := t.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit("1"))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to create %s counter: %w", name, err))
		}

		return c
	}

	t.httpRequestsTotal = counter("http_requests_total", "Total number of HTTP requests")
	t.httpRequestDuration = histogram("http_request_duration_seconds", "HTTP request duration in seconds")
	t.httpRequestsInFlight = upDown("http_requests_in_flight", "Number of HTTP requests currently being processed")

	t.transfersTotal = counter("transfers_total", "Total number of finished transfer sessions")
	t.transfersActive = upDown("transfers_active", "Number of transfer sessions in progress")
	t.transferDuration = histogram("transfer_duration_seconds", "Transfer session duration in seconds")
	t.partAttemptsTotal = counter("part_attempts_total", "Total number of part upload attempts")
	t.protocolOperations = counter("protocol_operations_total", "Total number of transfer protocol calls")
	t.protocolErrors = counter("protocol_errors_total", "Total number of failed transfer protocol calls")
	t.protocolOperationTimes = histogram("protocol_operation_duration_seconds", "Transfer protocol call duration in seconds")
	t.dbOperationsTotal = counter("db_operations_total", "Total number of database operations")
	t.dbOperationDuration = histogram("db_operation_duration_seconds", "Database operation duration in seconds")
	t.systemErrors = counter("system_errors_total", "Total number of system errors")

	partBytes, err := t.meter.Int64Counter("part_bytes_total",
		metric.WithDescription("Bytes uploaded by successful part attempts"),
		metric.WithUnit("By"),
	)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to create part_bytes_total counter: %w", err))
	}

	t.partBytesTotal = partBytes

	uptime, err := t.meter.Float64Gauge("system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to create system_uptime gauge: %w", err))
	}

	t.systemUptime = uptime

	return errors.Join(errs...)
}

// collectSystemMetrics records process uptime until ctx is done.
func (t *Telemetry) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.systemUptime.Record(ctx, time.Since(startTime).Seconds())
		}
	}
}
