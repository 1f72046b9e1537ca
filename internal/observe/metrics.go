// Package observe provides application-wide observability primitives for
// agentnow: OpenTelemetry metrics, distributed tracing, structured logging,
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all agentnow metrics.
const meterName = "github.com/must108/agentnow"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use as the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// QueryDuration tracks single-shot recommendation query latency.
	QueryDuration metric.Float64Histogram

	// ChunkUploadDuration tracks audio chunk upload latency.
	ChunkUploadDuration metric.Float64Histogram

	// SynthesisDuration tracks speech synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// CaptureDuration tracks the wall time of a capture session from start
	// to finalization.
	CaptureDuration metric.Float64Histogram

	// --- Counters ---

	// BackendRequests counts recommendation backend calls. Use with attributes:
	//   attribute.String("endpoint", ...), attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// BackendErrors counts recommendation backend failures. Use with attribute:
	//   attribute.String("endpoint", ...)
	BackendErrors metric.Int64Counter

	// Utterances counts finalized utterances.
	Utterances metric.Int64Counter

	// Suggestions counts applied suggestions. Use with attribute:
	//   attribute.String("use_case", ...)
	Suggestions metric.Int64Counter

	// --- Gauges ---

	// ActiveCaptures tracks the number of live capture sessions.
	ActiveCaptures metric.Int64UpDownCounter

	// PendingPlaybacks tracks synthesis requests currently in flight.
	PendingPlaybacks metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for interactive voice latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.QueryDuration, err = m.Float64Histogram("agentnow.backend.query.duration",
		metric.WithDescription("Latency of single-shot recommendation queries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChunkUploadDuration, err = m.Float64Histogram("agentnow.backend.chunk_upload.duration",
		metric.WithDescription("Latency of audio chunk uploads."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("agentnow.synthesis.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("agentnow.capture.duration",
		metric.WithDescription("Wall time of a capture session from start to finalization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.BackendRequests, err = m.Int64Counter("agentnow.backend.requests",
		metric.WithDescription("Total recommendation backend calls by endpoint and status."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("agentnow.backend.errors",
		metric.WithDescription("Total recommendation backend failures by endpoint."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("agentnow.utterances",
		metric.WithDescription("Total finalized utterances."),
	); err != nil {
		return nil, err
	}
	if met.Suggestions, err = m.Int64Counter("agentnow.suggestions",
		metric.WithDescription("Total applied suggestions by use case."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCaptures, err = m.Int64UpDownCounter("agentnow.active_captures",
		metric.WithDescription("Number of live capture sessions."),
	); err != nil {
		return nil, err
	}
	if met.PendingPlaybacks, err = m.Int64UpDownCounter("agentnow.pending_playbacks",
		metric.WithDescription("Synthesis requests currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("agentnow.http.request.duration",
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

// RecordBackendRequest records a backend request counter increment with the
// standard attribute set.
func (m *Metrics) RecordBackendRequest(ctx context.Context, endpoint, status string) {
	m.BackendRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		),
	)
}

// RecordBackendError records a backend error counter increment.
func (m *Metrics) RecordBackendError(ctx context.Context, endpoint string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("endpoint", endpoint)),
	)
}

// RecordSuggestion records an applied-suggestion counter increment.
func (m *Metrics) RecordSuggestion(ctx context.Context, useCase string) {
	m.Suggestions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("use_case", useCase)),
	)
}
