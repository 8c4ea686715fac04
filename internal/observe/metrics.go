// Package observe provides application-wide observability primitives for
// Mayla: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Mayla metrics.
const meterName = "github.com/maylavoice/mayla"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
//
// Metrics satisfies the metrics interfaces of the tools, orchestrator, and
// wakeword packages, so a single instance can be handed to each of them.
type Metrics struct {
	// ToolDuration tracks tool execution latency.
	ToolDuration metric.Float64Histogram

	// SessionDuration tracks how long voice sessions last, wake to
	// disconnect.
	SessionDuration metric.Float64Histogram

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// IntegrityRejections counts tool calls rejected by the identifier
	// guard. Use with attribute: attribute.String("code", ...)
	IntegrityRejections metric.Int64Counter

	// WakeDetections counts accepted wake phrase matches.
	WakeDetections metric.Int64Counter

	// SessionsStarted counts voice sessions opened.
	SessionsStarted metric.Int64Counter

	// PumpEvents counts realtime events processed by the session pump.
	// Use with attribute: attribute.String("type", ...)
	PumpEvents metric.Int64Counter

	// ActiveSessions tracks the number of live voice sessions. It is 0 or
	// 1 for a single assistant but counts correctly either way.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks admin endpoint request processing time.
	// Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets defines histogram bucket boundaries (in seconds) for whole
// session durations.
var sessionBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ToolDuration, err = m.Float64Histogram("mayla.tool.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("mayla.session.duration",
		metric.WithDescription("Duration of voice sessions from connect to disconnect."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ToolCalls, err = m.Int64Counter("mayla.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.IntegrityRejections, err = m.Int64Counter("mayla.integrity.rejections",
		metric.WithDescription("Tool calls rejected by the identifier guard, by rejection code."),
	); err != nil {
		return nil, err
	}
	if met.WakeDetections, err = m.Int64Counter("mayla.wake.detections",
		metric.WithDescription("Accepted wake phrase detections."),
	); err != nil {
		return nil, err
	}
	if met.SessionsStarted, err = m.Int64Counter("mayla.sessions.started",
		metric.WithDescription("Voice sessions opened."),
	); err != nil {
		return nil, err
	}
	if met.PumpEvents, err = m.Int64Counter("mayla.pump.events",
		metric.WithDescription("Realtime events processed by the session pump, by wire type."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("mayla.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("mayla.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records one tool invocation with its latency and outcome.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, d time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
	m.ToolDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// RecordIntegrityRejection records one identifier-guard rejection.
func (m *Metrics) RecordIntegrityRejection(ctx context.Context, code string) {
	m.IntegrityRejections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("code", code)),
	)
}

// WakeDetected records one accepted wake phrase match.
func (m *Metrics) WakeDetected(ctx context.Context) {
	m.WakeDetections.Add(ctx, 1)
}

// RecordPumpEvent records one realtime event handled by the session pump.
func (m *Metrics) RecordPumpEvent(ctx context.Context, eventType string) {
	m.PumpEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
}

// SessionStarted records a newly opened voice session.
func (m *Metrics) SessionStarted(ctx context.Context) {
	m.SessionsStarted.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded records a finished voice session and its duration.
func (m *Metrics) SessionEnded(ctx context.Context, d time.Duration) {
	m.ActiveSessions.Add(ctx, -1)
	m.SessionDuration.Record(ctx, d.Seconds())
}
