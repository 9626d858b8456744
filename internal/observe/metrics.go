// Package observe provides application-wide observability primitives for
// Aether: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the status server's /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Aether metrics.
const meterName = "github.com/MrWong99/aether"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Reconciler ---

	// EventsApplied counts reduced events. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("outcome", ...)
	EventsApplied metric.Int64Counter

	// DuplicatesDropped counts events rejected by the dedup ledger.
	DuplicatesDropped metric.Int64Counter

	// BatchSize records the number of events per applied batch.
	BatchSize metric.Int64Histogram

	// BatchDuration tracks the time spent inside one batch lock section.
	BatchDuration metric.Float64Histogram

	// SnapshotsLoaded counts snapshot epochs started.
	SnapshotsLoaded metric.Int64Counter

	// --- Remote API ---

	// APIRequestDuration tracks REST round trips. Use with attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	APIRequestDuration metric.Float64Histogram

	// APIErrors counts failed REST calls by op and error class.
	APIErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by target
	// state.
	BreakerTransitions metric.Int64Counter

	// --- Stream ---

	// StreamConnections tracks the number of open event streams.
	StreamConnections metric.Int64UpDownCounter

	// StreamReconnects counts reconnect attempts.
	StreamReconnects metric.Int64Counter

	// --- Journal ---

	// JournalErrors counts failed journal appends by sink.
	JournalErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks status server requests. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Batches
// are in-memory and sub-millisecond; REST calls cross the network.
var latencyBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5,
}

var batchSizeBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 500}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Reconciler.
	if met.EventsApplied, err = m.Int64Counter("aether.events.applied",
		metric.WithDescription("Events passed to the reducer by kind and outcome."),
	); err != nil {
		return nil, err
	}
	if met.DuplicatesDropped, err = m.Int64Counter("aether.events.duplicates",
		metric.WithDescription("Events dropped because their dedup key was already seen."),
	); err != nil {
		return nil, err
	}
	if met.BatchSize, err = m.Int64Histogram("aether.batch.size",
		metric.WithDescription("Number of events per applied batch."),
		metric.WithExplicitBucketBoundaries(batchSizeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BatchDuration, err = m.Float64Histogram("aether.batch.duration",
		metric.WithDescription("Time spent applying one batch including the render."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SnapshotsLoaded, err = m.Int64Counter("aether.snapshots.loaded",
		metric.WithDescription("Snapshots loaded into the projection."),
	); err != nil {
		return nil, err
	}

	// Remote API.
	if met.APIRequestDuration, err = m.Float64Histogram("aether.api.duration",
		metric.WithDescription("Latency of REST calls by operation and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.APIErrors, err = m.Int64Counter("aether.api.errors",
		metric.WithDescription("Failed REST calls by operation and error class."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("aether.api.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by target state."),
	); err != nil {
		return nil, err
	}

	// Stream.
	if met.StreamConnections, err = m.Int64UpDownCounter("aether.stream.connections",
		metric.WithDescription("Number of open event streams."),
	); err != nil {
		return nil, err
	}
	if met.StreamReconnects, err = m.Int64Counter("aether.stream.reconnects",
		metric.WithDescription("Stream reconnect attempts."),
	); err != nil {
		return nil, err
	}

	// Journal.
	if met.JournalErrors, err = m.Int64Counter("aether.journal.errors",
		metric.WithDescription("Failed journal appends by sink."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("aether.http.request.duration",
		metric.WithDescription("Status server latency by method, route and status."),
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

// RecordEvent records one reducer outcome for an event kind.
func (m *Metrics) RecordEvent(ctx context.Context, kind, outcome string) {
	m.EventsApplied.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordDuplicate records an event dropped by the dedup ledger.
func (m *Metrics) RecordDuplicate(ctx context.Context, kind string) {
	m.DuplicatesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordBatch records the size and lock-section duration of one batch.
func (m *Metrics) RecordBatch(ctx context.Context, size int, d time.Duration) {
	m.BatchSize.Record(ctx, int64(size))
	m.BatchDuration.Record(ctx, d.Seconds())
}

// RecordAPIRequest records a REST round trip. status is the HTTP status code
// as text, or "transport" when no response was received.
func (m *Metrics) RecordAPIRequest(ctx context.Context, op, status string, d time.Duration) {
	m.APIRequestDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordAPIError is a convenience method that records a failed REST call.
func (m *Metrics) RecordAPIError(ctx context.Context, op, class string) {
	m.APIErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("class", class),
		),
	)
}

// RecordBreakerTransition records a circuit breaker entering state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("to", to)),
	)
}

// RecordJournalError records a failed journal append.
func (m *Metrics) RecordJournalError(ctx context.Context, sink string) {
	m.JournalErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("sink", sink)),
	)
}
