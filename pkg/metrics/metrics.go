// Package metrics provides the OpenTelemetry metric instruments for the
// streaming pipeline.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
// [Metrics] instance ([Default]) is provided for convenience; tests should
// use [NewMetrics] with their own [metric.MeterProvider] to avoid
// cross-test pollution.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all instruments.
const meterName = "github.com/purecast-io/purecast"

// Metrics holds all metric instruments for the streaming pipeline. All
// fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ProcessDuration tracks the time spent windowing, enhancing and
	// reassembling per ingested block.
	ProcessDuration metric.Float64Histogram

	// SessionDuration tracks how long broadcast sessions live, recorded
	// once when a session closes.
	SessionDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram

	// SessionsStarted counts broadcast sessions created.
	SessionsStarted metric.Int64Counter

	// SegmentsEmitted counts enhanced segments produced by the pipeline.
	SegmentsEmitted metric.Int64Counter

	// EnhanceFailures counts windows that fell back to passthrough because
	// the enhancement model failed.
	EnhanceFailures metric.Int64Counter

	// IngestDrops counts audio blocks dropped at the ingest queue.
	IngestDrops metric.Int64Counter

	// ListenerDrops counts segments dropped at per-listener queues.
	ListenerDrops metric.Int64Counter

	// RecordingsSaved counts recordings persisted at session close.
	RecordingsSaved metric.Int64Counter

	// ActiveSessions tracks the number of live broadcast sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveListeners tracks the number of connected listeners across all
	// sessions.
	ActiveListeners metric.Int64UpDownCounter
}

// latencyBuckets defines histogram boundaries (in seconds) sized for
// per-block pipeline work and HTTP handling.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// sessionBuckets defines histogram boundaries (in seconds) sized for
// broadcast session lifetimes.
var sessionBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation
// fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ProcessDuration, err = m.Float64Histogram("purecast.pipeline.process.duration",
		metric.WithDescription("Time spent windowing, enhancing and reassembling per ingested block."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("purecast.session.duration",
		metric.WithDescription("Broadcast session lifetime."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("purecast.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SessionsStarted, err = m.Int64Counter("purecast.sessions.started",
		metric.WithDescription("Total broadcast sessions created."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsEmitted, err = m.Int64Counter("purecast.segments.emitted",
		metric.WithDescription("Total enhanced segments produced."),
	); err != nil {
		return nil, err
	}
	if met.EnhanceFailures, err = m.Int64Counter("purecast.enhance.failures",
		metric.WithDescription("Total windows degraded to passthrough after an enhancement failure."),
	); err != nil {
		return nil, err
	}
	if met.IngestDrops, err = m.Int64Counter("purecast.ingest.drops",
		metric.WithDescription("Total audio blocks dropped at the ingest queue."),
	); err != nil {
		return nil, err
	}
	if met.ListenerDrops, err = m.Int64Counter("purecast.listener.drops",
		metric.WithDescription("Total segments dropped at per-listener queues."),
	); err != nil {
		return nil, err
	}
	if met.RecordingsSaved, err = m.Int64Counter("purecast.recordings.saved",
		metric.WithDescription("Total recordings persisted at session close."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("purecast.active_sessions",
		metric.WithDescription("Number of live broadcast sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveListeners, err = m.Int64UpDownCounter("purecast.active_listeners",
		metric.WithDescription("Number of connected listeners across all sessions."),
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

// Default returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails, which cannot happen
// with the global provider.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity
// at call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSessionClose records the end of a session: duration observed and
// the active gauge decremented.
func (m *Metrics) RecordSessionClose(ctx context.Context, seconds float64) {
	m.SessionDuration.Record(ctx, seconds)
	m.ActiveSessions.Add(ctx, -1)
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, seconds float64) {
	m.HTTPRequestDuration.Record(ctx, seconds, metric.WithAttributes(
		Attr("method", method),
		Attr("route", route),
		attribute.Int("status", status),
	))
}

// RecordSessionStart increments the session counters.
func (m *Metrics) RecordSessionStart(ctx context.Context, owner string) {
	m.SessionsStarted.Add(ctx, 1, metric.WithAttributes(Attr("owner", owner)))
	m.ActiveSessions.Add(ctx, 1)
}
