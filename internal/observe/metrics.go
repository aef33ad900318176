// Package observe provides application-wide observability primitives for
// voxctl: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them into a Prometheus registry served by
// [Provider.MetricsHandler]. [DefaultMetrics] binds to the global provider
// for components built without explicit instruments; tests use [NewMetrics]
// with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxctl metrics.
const meterName = "github.com/MrWong99/voxctl"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Pipeline counters ---

	// FramesRead counts audio frames handed to the recognizer.
	FramesRead metric.Int64Counter

	// ReadsSkipped counts empty or failed audio reads.
	ReadsSkipped metric.Int64Counter

	// DecodeSteps counts recognizer decode steps.
	DecodeSteps metric.Int64Counter

	// Endpoints counts utterance boundaries reported by the engine.
	Endpoints metric.Int64Counter

	// TailPaddings counts silence paddings fed at endpoints.
	TailPaddings metric.Int64Counter

	// Transcripts counts transcripts forwarded to the text callback. Use with
	// attribute:
	//   attribute.Bool("final", ...)
	Transcripts metric.Int64Counter

	// ActionsDispatched counts dispatched actions. Use with attributes:
	//   attribute.String("action", ...), attribute.String("dispatcher", ...)
	ActionsDispatched metric.Int64Counter

	// --- Lifecycle ---

	// SessionStarts counts Start attempts. Use with attribute:
	//   attribute.String("status", ...)
	SessionStarts metric.Int64Counter

	// SessionStops counts completed Stops.
	SessionStops metric.Int64Counter

	// ActiveSessions tracks the number of running voice input sessions (0 or 1).
	ActiveSessions metric.Int64UpDownCounter

	// EngineLoadDuration tracks recognition engine initialization latency.
	EngineLoadDuration metric.Float64Histogram

	// SessionDuration tracks how long sessions stayed ON.
	SessionDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for model
// loading and request latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets covers session lifetimes from seconds to hours.
var sessionBuckets = []float64{
	1, 10, 60, 300, 900, 1800, 3600, 7200, 14400,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.FramesRead, "voxctl.audio.frames", "Total audio frames handed to the recognizer."},
		{&met.ReadsSkipped, "voxctl.audio.reads_skipped", "Total empty or failed audio reads."},
		{&met.DecodeSteps, "voxctl.recognizer.decode_steps", "Total recognizer decode steps."},
		{&met.Endpoints, "voxctl.recognizer.endpoints", "Total utterance endpoints."},
		{&met.TailPaddings, "voxctl.recognizer.tail_paddings", "Total silence paddings fed at endpoints."},
		{&met.Transcripts, "voxctl.transcripts", "Total transcripts forwarded to the text callback."},
		{&met.ActionsDispatched, "voxctl.actions.dispatched", "Total actions dispatched by action and dispatcher."},
		{&met.SessionStarts, "voxctl.session.starts", "Total session start attempts by status."},
		{&met.SessionStops, "voxctl.session.stops", "Total completed session stops."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxctl.active_sessions",
		metric.WithDescription("Number of running voice input sessions."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.EngineLoadDuration, err = m.Float64Histogram("voxctl.engine.load.duration",
		metric.WithDescription("Latency of recognition engine initialization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("voxctl.session.duration",
		metric.WithDescription("Time a voice input session stayed ON."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxctl.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
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

// RecordSessionStart records a start attempt with its outcome ("ok",
// "already_running", "permission_denied", "engine_init_failed", "error").
func (m *Metrics) RecordSessionStart(ctx context.Context, status string) {
	m.SessionStarts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordTranscript records a forwarded transcript.
func (m *Metrics) RecordTranscript(ctx context.Context, final bool) {
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("final", final)))
}

// RecordAction records a dispatched action.
func (m *Metrics) RecordAction(ctx context.Context, action, dispatcher string) {
	m.ActionsDispatched.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("dispatcher", dispatcher),
		),
	)
}
