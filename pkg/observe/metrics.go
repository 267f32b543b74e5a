// Package observe provides OpenTelemetry metrics and tracing for the
// interviewer.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported for
// Prometheus scraping by [InitProvider]. Tests should build [Metrics] with
// [NewMetrics] over their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all interviewer metrics.
const meterName = "github.com/teslashibe/go-interviewer"

// Metrics holds the metric instruments. All fields are safe for concurrent use.
type Metrics struct {
	// ActiveSessions tracks interviews that are connecting or live.
	ActiveSessions metric.Int64UpDownCounter

	// SessionStarts counts start attempts. Attribute: outcome.
	SessionStarts metric.Int64Counter

	// SessionEnds counts finished interviews. Attribute: reason.
	SessionEnds metric.Int64Counter

	// ToolCalls counts tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// ToolDuration tracks tool execution latency.
	ToolDuration metric.Float64Histogram

	// TransportErrors counts terminal transport failures. Attribute: kind.
	TransportErrors metric.Int64Counter

	// TranscriptEntries counts transcript entries created. Attribute: role.
	TranscriptEntries metric.Int64Counter

	// EvaluationScores records scores of stored evaluations.
	EvaluationScores metric.Float64Histogram

	// HTTPRequestDuration tracks control API latency. Attributes: method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

var scoreBuckets = []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveSessions, err = m.Int64UpDownCounter("interviewer.active_sessions",
		metric.WithDescription("Number of interviews connecting or live."),
	); err != nil {
		return nil, err
	}
	if met.SessionStarts, err = m.Int64Counter("interviewer.session.starts",
		metric.WithDescription("Interview start attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SessionEnds, err = m.Int64Counter("interviewer.session.ends",
		metric.WithDescription("Finished interviews by reason."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("interviewer.tool.calls",
		metric.WithDescription("Tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("interviewer.tool.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("interviewer.transport.errors",
		metric.WithDescription("Terminal transport failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptEntries, err = m.Int64Counter("interviewer.transcript.entries",
		metric.WithDescription("Transcript entries created by role."),
	); err != nil {
		return nil, err
	}
	if met.EvaluationScores, err = m.Float64Histogram("interviewer.evaluation.score",
		metric.WithDescription("Scores of stored answer evaluations."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("interviewer.http.request.duration",
		metric.WithDescription("Control API request latency by method, route and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level Metrics built on the global
// provider. It panics if instrument creation fails.
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

// SessionStarted records a start attempt and, on success, one more active session.
func (m *Metrics) SessionStarted(ctx context.Context, outcome string) {
	m.SessionStarts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome == "connected" {
		m.ActiveSessions.Add(ctx, 1)
	}
}

// SessionEnded records a finished live session.
func (m *Metrics) SessionEnded(ctx context.Context, reason string) {
	m.ActiveSessions.Add(ctx, -1)
	m.SessionEnds.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// ToolCalled records one tool invocation.
func (m *Metrics) ToolCalled(ctx context.Context, tool, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("tool", tool), attribute.String("status", status))
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("tool", tool)))
}

// TransportFailed records a terminal transport failure.
func (m *Metrics) TransportFailed(ctx context.Context, kind string) {
	m.TransportErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// TranscriptEntry records a new transcript entry.
func (m *Metrics) TranscriptEntry(ctx context.Context, role string) {
	m.TranscriptEntries.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

// EvaluationScored records a stored evaluation score.
func (m *Metrics) EvaluationScored(ctx context.Context, score float64) {
	m.EvaluationScores.Record(ctx, score)
}

// HTTPRequest records one control API request.
func (m *Metrics) HTTPRequest(ctx context.Context, method, route string, status int, seconds float64) {
	m.HTTPRequestDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}
