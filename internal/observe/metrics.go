// Package observe provides observability primitives for aurelay:
// OpenTelemetry metrics, tracing helpers, and HTTP middleware tying them
// together.
//
// Metrics are recorded through the OTel Metrics API and exported through a
// Prometheus bridge (see [InitProvider]) so they remain scrapable on the
// standard /metrics endpoint. There is no package-level default instance;
// construct a [Metrics] with [NewMetrics] and inject it where needed.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all aurelay metrics.
const meterName = "github.com/MrWong99/aurelay"

// Metrics holds the OTel instruments for the voice session pipeline. The
// underlying OTel types handle their own synchronisation.
type Metrics struct {
	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// SessionDuration tracks wall-clock session length in seconds.
	SessionDuration metric.Float64Histogram

	// TimeToFirstAudio tracks connect-to-first-audio latency per session.
	TimeToFirstAudio metric.Float64Histogram

	// ToolCallDuration tracks gateway round-trip latency per tool call.
	// Attributes: tool, status, retrieval.
	ToolCallDuration metric.Float64Histogram

	// ToolCalls counts tool invocations. Attributes: tool, status, retrieval.
	ToolCalls metric.Int64Counter

	// Tokens counts billed tokens. Attributes: direction, modality.
	Tokens metric.Int64Counter

	// SessionCost accumulates estimated session cost in USD.
	SessionCost metric.Float64Counter

	// PersistenceErrors counts swallowed history/analytics write failures.
	// Attribute: op.
	PersistenceErrors metric.Int64Counter

	// RouterErrors counts non-fatal protocol errors seen by the event router.
	RouterErrors metric.Int64Counter

	// HTTPRequestDuration tracks control-surface request latency.
	// Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets is tuned for voice latencies: tens of milliseconds up to
// whole-session tool calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveSessions, err = m.Int64UpDownCounter("aurelay.sessions.active",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("aurelay.session.duration",
		metric.WithDescription("Wall-clock session duration."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.TimeToFirstAudio, err = m.Float64Histogram("aurelay.session.time_to_first_audio",
		metric.WithDescription("Latency from connect request to first audio delta."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCallDuration, err = m.Float64Histogram("aurelay.tool.duration",
		metric.WithDescription("Gateway round-trip latency per tool call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("aurelay.tool.calls",
		metric.WithDescription("Total tool invocations by tool name, status, and retrieval flag."),
	); err != nil {
		return nil, err
	}
	if met.Tokens, err = m.Int64Counter("aurelay.tokens",
		metric.WithDescription("Total billed tokens by direction and modality."),
	); err != nil {
		return nil, err
	}
	if met.SessionCost, err = m.Float64Counter("aurelay.session.cost",
		metric.WithDescription("Estimated cumulative session cost."),
		metric.WithUnit("{USD}"),
	); err != nil {
		return nil, err
	}
	if met.PersistenceErrors, err = m.Int64Counter("aurelay.persistence.errors",
		metric.WithDescription("Swallowed history and analytics write failures by operation."),
	); err != nil {
		return nil, err
	}
	if met.RouterErrors, err = m.Int64Counter("aurelay.router.errors",
		metric.WithDescription("Non-fatal protocol errors seen by the event router."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("aurelay.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordToolCall records one tool invocation with its round-trip duration.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, ok, retrieval bool, d time.Duration) {
	status := "ok"
	if !ok {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
		attribute.Bool("retrieval", retrieval),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolCallDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordTokens records a token delta for one direction/modality pair.
// Zero deltas are skipped.
func (m *Metrics) RecordTokens(ctx context.Context, direction, modality string, n int64) {
	if n == 0 {
		return
	}
	m.Tokens.Add(ctx, n, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("modality", modality),
	))
}

// RecordPersistenceError counts one swallowed write failure.
func (m *Metrics) RecordPersistenceError(ctx context.Context, op string) {
	m.PersistenceErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordSessionEnd records final duration and cost when a session closes.
func (m *Metrics) RecordSessionEnd(ctx context.Context, duration time.Duration, costUSD float64) {
	m.SessionDuration.Record(ctx, duration.Seconds())
	m.SessionCost.Add(ctx, costUSD)
}
