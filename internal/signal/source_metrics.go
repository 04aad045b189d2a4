package signal

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/switchpilot/switchpilot/internal/signal"

// SourceMetrics times the queries the collector issues against its signal
// sources, per source and per team, with a degraded flag for queries that
// fell back to neutral values. A nil *SourceMetrics records nothing, so
// callers never have to branch on whether telemetry is wired.
type SourceMetrics struct {
	duration metric.Float64Histogram
	total    metric.Int64Counter
}

// NewSourceMetrics creates the signal-source instruments on the global meter.
func NewSourceMetrics() (*SourceMetrics, error) {
	meter := otel.Meter(meterName)
	m := &SourceMetrics{}
	var err error

	if m.duration, err = meter.Float64Histogram(
		"signal.source.query.duration",
		metric.WithDescription("Signal source query latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.total, err = meter.Int64Counter(
		"signal.source.query.total",
		metric.WithDescription("Signal source queries issued"),
		metric.WithUnit("{query}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordQuery records one source query for a team.
func (m *SourceMetrics) RecordQuery(ctx context.Context, source, teamName string, elapsed time.Duration, degraded bool) {
	if m == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("team", teamName),
		attribute.Bool("degraded", degraded),
	)
	m.duration.Record(ctx, elapsed.Seconds(), opt)
	m.total.Add(ctx, 1, opt)
}
