package signal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/switchpilot/switchpilot/internal/signal"
	"github.com/switchpilot/switchpilot/internal/team"
)

type fakeMetrics struct {
	values map[string]float64
	err    error
}

func (f *fakeMetrics) Query(_ context.Context, _ string, metric string, _ time.Duration) (float64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	v, ok := f.values[metric]
	return v, ok, nil
}

type fakeLogs struct {
	counts map[string]int // keyed by the first pattern
	err    error
}

func (f *fakeLogs) CountMatches(_ context.Context, _ string, patterns []string, _ time.Duration) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if len(patterns) == 0 {
		return 0, nil
	}
	return f.counts[patterns[0]], nil
}

type fakeHealth struct {
	pct float64
	err error
}

func (f *fakeHealth) Run(context.Context, string, []string, time.Duration) (float64, error) {
	return f.pct, f.err
}

func collectProfile() *team.Profile {
	p := team.DefaultProfile("payments")
	p.HealthCheckCommand = []string{"healthcheck.sh"}
	return &p
}

func newCollector(m signal.MetricsSource, l signal.LogsSource, h signal.HealthChecker) *signal.Collector {
	return signal.NewCollector(signal.CollectorConfig{
		Metrics: m,
		Logs:    l,
		Health:  h,
		Logger:  zerolog.Nop(),
	})
}

func TestCollect_FusesAllSources(t *testing.T) {
	metrics := &fakeMetrics{values: map[string]float64{
		signal.MetricErrorRate:    0.02,
		signal.MetricResponseP95:  850,
		signal.MetricAvailability: 99.7,
		signal.MetricMemoryUsage:  61,
		signal.MetricCPUUsage:     40,
		signal.MetricDiskUsage:    55,
	}}
	logs := &fakeLogs{counts: map[string]int{"ERROR": 4, "FATAL": 1}}
	health := &fakeHealth{pct: 96}

	r := newCollector(metrics, logs, health).Collect(context.Background(), collectProfile())

	assert.InDelta(t, 0.02, r.ErrorRate, 0.0001)
	assert.InDelta(t, 850.0, r.LatencyP95MS, 0.001)
	assert.InDelta(t, 99.7, r.Availability, 0.001)
	assert.Equal(t, 4, r.LogErrorCount)
	assert.Equal(t, 1, r.LogCriticalCount)
	assert.InDelta(t, 96.0, r.HealthCheckPercent, 0.001)
	assert.False(t, r.DegradedMetrics)
	assert.False(t, r.DegradedLogs)
	assert.False(t, r.DegradedHealth)
}

func TestCollect_SourceErrorsDegradeToNeutral(t *testing.T) {
	boom := errors.New("connection refused")
	c := newCollector(&fakeMetrics{err: boom}, &fakeLogs{err: boom}, &fakeHealth{err: boom})

	r := c.Collect(context.Background(), collectProfile())

	// Neutral values survive, with every degraded flag raised.
	assert.Zero(t, r.ErrorRate)
	assert.InDelta(t, 100.0, r.Availability, 0.001)
	assert.Zero(t, r.LogErrorCount)
	assert.InDelta(t, 100.0, r.HealthCheckPercent, 0.001)
	assert.True(t, r.DegradedMetrics)
	assert.True(t, r.DegradedLogs)
	assert.True(t, r.DegradedHealth)
}

func TestCollect_AbsentMetricDegrades(t *testing.T) {
	metrics := &fakeMetrics{values: map[string]float64{
		signal.MetricErrorRate: 0.01,
		// availability missing from the source
	}}
	c := newCollector(metrics, &fakeLogs{}, &fakeHealth{pct: 100})

	r := c.Collect(context.Background(), collectProfile())

	assert.InDelta(t, 0.01, r.ErrorRate, 0.0001)
	assert.InDelta(t, 100.0, r.Availability, 0.001)
	assert.True(t, r.DegradedMetrics)
}

func TestCollect_NilSources(t *testing.T) {
	c := newCollector(nil, nil, nil)

	r := c.Collect(context.Background(), collectProfile())

	assert.True(t, r.DegradedMetrics)
	assert.True(t, r.DegradedLogs)
	assert.True(t, r.DegradedHealth)
}

func TestCollect_NoHealthCheckCommand(t *testing.T) {
	p := team.DefaultProfile("payments") // no command configured
	c := newCollector(&fakeMetrics{}, &fakeLogs{}, &fakeHealth{pct: 10})

	r := c.Collect(context.Background(), &p)

	assert.True(t, r.DegradedHealth)
	assert.InDelta(t, 100.0, r.HealthCheckPercent, 0.001, "skipped source keeps the neutral value")
}
