package streaming

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const metricPrefix = "workflowkit_stream_"

var streamDurationBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}

// Metrics records shared stream telemetry. A nil *Metrics is a no-op.
type Metrics struct {
	activeStreams  metric.Int64UpDownCounter
	streamDuration metric.Float64Histogram
	joins          metric.Int64Counter
	events         metric.Int64Counter
	streamErrors   metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		return nil, nil
	}
	active, err := meter.Int64UpDownCounter(
		metricPrefix+"active_connections",
		metric.WithDescription("Live shared stream connections"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create active connections counter: %w", err)
	}
	duration, err := meter.Float64Histogram(
		metricPrefix+"connection_duration_seconds",
		metric.WithDescription("Lifetime of shared stream connections"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(streamDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create connection duration histogram: %w", err)
	}
	joins, err := meter.Int64Counter(
		metricPrefix+"deduplicated_joins_total",
		metric.WithDescription("Subscribers attached to an already open connection"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create joins counter: %w", err)
	}
	events, err := meter.Int64Counter(
		metricPrefix+"events_total",
		metric.WithDescription("Events fanned out to subscribers"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create events counter: %w", err)
	}
	errorsCounter, err := meter.Int64Counter(
		metricPrefix+"errors_total",
		metric.WithDescription("Streams that ended with an error, by reason"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors counter: %w", err)
	}
	return &Metrics{
		activeStreams:  active,
		streamDuration: duration,
		joins:          joins,
		events:         events,
		streamErrors:   errorsCounter,
	}, nil
}

func (m *Metrics) RecordConnect(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.activeStreams.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordDisconnect(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.activeStreams.Add(ctx, -1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordDuration(ctx context.Context, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.streamDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordJoin(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.joins.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordEvent(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordError increments the error counter with the provided reason.
func (m *Metrics) RecordError(ctx context.Context, kind, reason string) {
	if m == nil {
		return
	}
	m.streamErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("reason", reason),
	))
}
