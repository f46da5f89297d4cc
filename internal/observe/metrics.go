// Package observe provides application-wide observability primitives for
// Lumastream: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Lumastream metrics.
const meterName = "github.com/lumastream/lumastream"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use since the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// PlaybackLead tracks how far ahead of the output clock each inbound
	// audio chunk is scheduled. Values near zero mean the session is playing
	// chunks as fast as they arrive; larger values mean buffered lead.
	PlaybackLead metric.Float64Histogram

	// SessionDuration tracks the lifetime of completed sessions.
	SessionDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// PacketsSent counts outbound media packets. Use with attributes:
	//   attribute.String("kind", "audio"|"image")
	PacketsSent metric.Int64Counter

	// PacketsDropped counts outbound packets discarded before the transport.
	// Use with attributes:
	//   attribute.String("reason", "muted"|"queue_full"|"send_failed")
	PacketsDropped metric.Int64Counter

	// ChunksScheduled counts inbound audio chunks handed to the playback
	// scheduler.
	ChunksScheduled metric.Int64Counter

	// ChunksRejected counts inbound audio chunks dropped as undecodable.
	ChunksRejected metric.Int64Counter

	// Interruptions counts barge-in events signalled by the agent.
	Interruptions metric.Int64Counter

	// TranscriptFragments counts streamed transcript fragments. Use with
	// attribute:
	//   attribute.String("role", "user"|"agent")
	TranscriptFragments metric.Int64Counter

	// TurnsCompleted counts completed conversation turns.
	TurnsCompleted metric.Int64Counter

	// TransportErrors counts errors surfaced by the transport event stream.
	TransportErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live streaming sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActivePlaybackUnits tracks scheduled, not-yet-finished playback units.
	ActivePlaybackUnits metric.Int64UpDownCounter
}

// leadBuckets defines histogram bucket boundaries (in seconds) for playback
// scheduling lead.
var leadBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// sessionBuckets defines histogram bucket boundaries (in seconds) for
// session lifetimes.
var sessionBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.PlaybackLead, err = m.Float64Histogram("lumastream.playback.lead",
		metric.WithDescription("Scheduling lead of inbound audio chunks over the output clock."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(leadBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("lumastream.session.duration",
		metric.WithDescription("Lifetime of completed sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("lumastream.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PacketsSent, err = m.Int64Counter("lumastream.packets.sent",
		metric.WithDescription("Total outbound media packets by kind."),
	); err != nil {
		return nil, err
	}
	if met.PacketsDropped, err = m.Int64Counter("lumastream.packets.dropped",
		metric.WithDescription("Total outbound packets discarded before the transport, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ChunksScheduled, err = m.Int64Counter("lumastream.playback.chunks.scheduled",
		metric.WithDescription("Total inbound audio chunks handed to the playback scheduler."),
	); err != nil {
		return nil, err
	}
	if met.ChunksRejected, err = m.Int64Counter("lumastream.playback.chunks.rejected",
		metric.WithDescription("Total inbound audio chunks dropped as undecodable."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("lumastream.playback.interruptions",
		metric.WithDescription("Total barge-in events signalled by the agent."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptFragments, err = m.Int64Counter("lumastream.transcript.fragments",
		metric.WithDescription("Total streamed transcript fragments by role."),
	); err != nil {
		return nil, err
	}
	if met.TurnsCompleted, err = m.Int64Counter("lumastream.transcript.turns",
		metric.WithDescription("Total completed conversation turns."),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("lumastream.transport.errors",
		metric.WithDescription("Total errors surfaced by the transport event stream."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("lumastream.active_sessions",
		metric.WithDescription("Number of live streaming sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActivePlaybackUnits, err = m.Int64UpDownCounter("lumastream.playback.active_units",
		metric.WithDescription("Scheduled, not-yet-finished playback units."),
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

// RecordPacketSent records one outbound packet of the given kind.
func (m *Metrics) RecordPacketSent(ctx context.Context, kind string) {
	m.PacketsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordPacketDropped records one discarded outbound packet with the reason.
func (m *Metrics) RecordPacketDropped(ctx context.Context, reason string) {
	m.PacketsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordFragment records one transcript fragment for the given role.
func (m *Metrics) RecordFragment(ctx context.Context, role string) {
	m.TranscriptFragments.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}
