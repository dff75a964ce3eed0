// Package observe provides observability primitives for tutorvoice:
// OpenTelemetry metrics, tracing, trace-aware logging, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed to
// Prometheus by the exporter bridge installed in [InitProvider]. Tests should
// use [NewMetrics] with their own [metric.MeterProvider] rather than
// [DefaultMetrics].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/tutorvoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	meter metric.Meter

	// --- Latency ---

	// TTSDuration tracks speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// ConnectDuration tracks live session handshake latency.
	ConnectDuration metric.Float64Histogram

	// PlaybackLead tracks how far ahead of the device clock each reply chunk
	// was scheduled, in seconds. Values near zero mean the playback queue
	// ran dry before the chunk arrived.
	PlaybackLead metric.Float64Histogram

	// --- Capture path ---

	// FramesSent counts capture frames handed to the live session.
	FramesSent metric.Int64Counter

	// FramesDropped counts capture frames discarded because the outbound
	// queue was full.
	FramesDropped metric.Int64Counter

	// --- Inbound path ---

	// ChunksReceived counts reply audio chunks. Use with attribute:
	//   attribute.String("status", "ok"|"malformed")
	ChunksReceived metric.Int64Counter

	// Interruptions counts barge-in events reported by the live provider.
	Interruptions metric.Int64Counter

	// --- Sessions ---

	// SessionTransitions counts state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	SessionTransitions metric.Int64Counter

	// ActiveSessions tracks the number of sessions in the active state.
	ActiveSessions metric.Int64UpDownCounter

	// Utterances counts single-utterance speech requests. Use with attribute:
	//   attribute.String("status", "ok"|"busy"|"stopped"|"error")
	Utterances metric.Int64Counter

	// --- Providers ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes: attribute.String("name", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for remote
// calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16,
}

// leadBuckets covers the scheduling lead of reply audio (in seconds).
var leadBuckets = []float64{
	0, 0.02, 0.05, 0.1, 0.25, 0.5, 1, 2, 5,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.TTSDuration, err = m.Float64Histogram("tutorvoice.tts.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConnectDuration, err = m.Float64Histogram("tutorvoice.live.connect.duration",
		metric.WithDescription("Latency of the live session handshake."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackLead, err = m.Float64Histogram("tutorvoice.playback.lead",
		metric.WithDescription("Queued audio ahead of the device clock when a reply chunk is scheduled."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(leadBuckets...),
	); err != nil {
		return nil, err
	}

	if met.FramesSent, err = m.Int64Counter("tutorvoice.capture.frames.sent",
		metric.WithDescription("Capture frames handed to the live session."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("tutorvoice.capture.frames.dropped",
		metric.WithDescription("Capture frames dropped because the outbound queue was full."),
	); err != nil {
		return nil, err
	}
	if met.ChunksReceived, err = m.Int64Counter("tutorvoice.reply.chunks",
		metric.WithDescription("Reply audio chunks received by status."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("tutorvoice.reply.interruptions",
		metric.WithDescription("Barge-in events reported by the live provider."),
	); err != nil {
		return nil, err
	}

	if met.SessionTransitions, err = m.Int64Counter("tutorvoice.session.transitions",
		metric.WithDescription("Session state changes by from and to state."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("tutorvoice.active_sessions",
		metric.WithDescription("Number of active voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("tutorvoice.speech.utterances",
		metric.WithDescription("Single-utterance speech requests by outcome."),
	); err != nil {
		return nil, err
	}

	if met.ProviderErrors, err = m.Int64Counter("tutorvoice.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("tutorvoice.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("tutorvoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// PlaybackStats is a snapshot of a playback scheduler's lifetime counters.
type PlaybackStats struct {
	Enqueued  uint64
	Completed uint64
	Cancelled uint64
	Live      int
}

// ObservePlayback registers asynchronous instruments that read stats on
// every collection. name labels the scheduler. The returned registration
// must be unregistered when the scheduler is closed.
func (m *Metrics) ObservePlayback(name string, stats func() PlaybackStats) (metric.Registration, error) {
	enqueued, err := m.meter.Int64ObservableCounter("tutorvoice.playback.voices.enqueued",
		metric.WithDescription("Buffers scheduled for playback."))
	if err != nil {
		return nil, err
	}
	completed, err := m.meter.Int64ObservableCounter("tutorvoice.playback.voices.completed",
		metric.WithDescription("Buffers that played to their last frame."))
	if err != nil {
		return nil, err
	}
	cancelled, err := m.meter.Int64ObservableCounter("tutorvoice.playback.voices.cancelled",
		metric.WithDescription("Buffers stopped before their last frame."))
	if err != nil {
		return nil, err
	}
	live, err := m.meter.Int64ObservableGauge("tutorvoice.playback.voices.live",
		metric.WithDescription("Buffers currently scheduled or playing."))
	if err != nil {
		return nil, err
	}

	attrs := metric.WithAttributes(attribute.String("scheduler", name))
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(enqueued, int64(s.Enqueued), attrs)
		o.ObserveInt64(completed, int64(s.Completed), attrs)
		o.ObserveInt64(cancelled, int64(s.Cancelled), attrs)
		o.ObserveInt64(live, int64(s.Live), attrs)
		return nil
	}, enqueued, completed, cancelled, live)
}

// RecordTransition records a session state change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.SessionTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordChunk records one inbound reply chunk with its decode outcome.
func (m *Metrics) RecordChunk(ctx context.Context, status string) {
	m.ChunksReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordUtterance records the outcome of a single-utterance request.
func (m *Metrics) RecordUtterance(ctx context.Context, status string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBreaker records a circuit breaker transition.
func (m *Metrics) RecordBreaker(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("name", name),
			attribute.String("to", to),
		),
	)
}
