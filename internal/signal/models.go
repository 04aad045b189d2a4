// Package signal contains the adapters that query the three external signal
// sources: the time-series metrics endpoint, the log-pattern query endpoint,
// and the per-team health-check executable.
package signal

import (
	"context"
	"time"
)

// Metric names understood by the metrics query service.
const (
	MetricErrorRate    = "error_rate"
	MetricResponseP95  = "response_time_p95"
	MetricAvailability = "service_availability"
	MetricMemoryUsage  = "memory_usage"
	MetricCPUUsage     = "cpu_usage"
	MetricDiskUsage    = "disk_usage"
)

// MetricsSource queries one numeric metric for a team over a trailing
// window. The bool result is false when the metric is absent.
type MetricsSource interface {
	Query(ctx context.Context, team, metric string, window time.Duration) (float64, bool, error)
}

// LogsSource counts log lines matching any of the given patterns for a team
// over a trailing window.
type LogsSource interface {
	CountMatches(ctx context.Context, team string, patterns []string, window time.Duration) (int, error)
}

// HealthChecker executes the team's health-check command and reports the
// pass percentage in [0,100].
type HealthChecker interface {
	Run(ctx context.Context, team string, command []string, timeout time.Duration) (float64, error)
}

// Readings is one cycle's worth of normalized signal values for a team.
// Missing values are filled with neutral defaults and the corresponding
// Degraded* flag is set, so "healthy because data was missing" stays
// distinguishable from "healthy because actually healthy".
type Readings struct {
	ErrorRate    float64 `json:"error_rate"`
	LatencyP95MS float64 `json:"latency_p95_ms"`
	Availability float64 `json:"availability"`
	MemoryUsage  float64 `json:"memory_usage"`
	CPUUsage     float64 `json:"cpu_usage"`
	DiskUsage    float64 `json:"disk_usage"`

	LogErrorCount    int `json:"log_error_count"`
	LogCriticalCount int `json:"log_critical_count"`

	HealthCheckPercent float64 `json:"health_check_percent"`

	DegradedMetrics bool `json:"degraded_metrics,omitempty"`
	DegradedLogs    bool `json:"degraded_logs,omitempty"`
	DegradedHealth  bool `json:"degraded_health,omitempty"`
}

// NeutralReadings returns the defaults used when every source is silent.
func NeutralReadings() Readings {
	return Readings{
		Availability:       100,
		HealthCheckPercent: 100,
	}
}
