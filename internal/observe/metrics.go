// Package observe provides application-wide observability primitives for
// Voxline: OpenTelemetry metrics, tracing, and HTTP middleware that ties
// them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [Setup] wires
// a Prometheus exporter bridge so that metrics can be scraped via the
// dashboard's /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxline metrics.
const meterName = "github.com/voxline/voxline"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Counters ---

	// SessionStarts counts voice sessions started. Use with attribute:
	//   attribute.String("result", "ok"|"rejected")
	SessionStarts metric.Int64Counter

	// FramesCaptured counts microphone frames delivered by the input callback.
	FramesCaptured metric.Int64Counter

	// FramesDropped counts microphone frames dropped because the capture
	// queue was full.
	FramesDropped metric.Int64Counter

	// AudioChunksReceived counts agent audio chunks appended to playback.
	AudioChunksReceived metric.Int64Counter

	// AudioBytesReceived counts agent audio bytes appended to playback.
	AudioBytesReceived metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions (0 or 1).
	ActiveSessions metric.Int64UpDownCounter

	// PlaybackBufferBytes records the playback buffer occupancy sampled by
	// the session's monitor loop.
	PlaybackBufferBytes metric.Int64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.SessionStarts, err = m.Int64Counter("voxline.sessions.started",
		metric.WithDescription("Total voice sessions started, by result."),
	); err != nil {
		return nil, err
	}
	if met.FramesCaptured, err = m.Int64Counter("voxline.audio.frames_captured",
		metric.WithDescription("Microphone frames delivered by the input callback."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voxline.audio.frames_dropped",
		metric.WithDescription("Microphone frames dropped because the capture queue was full."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunksReceived, err = m.Int64Counter("voxline.audio.chunks_received",
		metric.WithDescription("Agent audio chunks appended to the playback buffer."),
	); err != nil {
		return nil, err
	}
	if met.AudioBytesReceived, err = m.Int64Counter("voxline.audio.bytes_received",
		metric.WithDescription("Agent audio bytes appended to the playback buffer."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxline.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackBufferBytes, err = m.Int64Gauge("voxline.playback.buffer_bytes",
		metric.WithDescription("Playback buffer occupancy sampled by the monitor loop."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxline.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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
