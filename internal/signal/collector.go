package signal

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/switchpilot/switchpilot/internal/team"
)

// Collector fuses the three signal sources into one Readings snapshot per
// team. Source errors degrade to neutral values with the matching flag set;
// they never abort the assessment.
type Collector struct {
	metrics     MetricsSource
	logs        LogsSource
	health      HealthChecker
	window      time.Duration
	logger      zerolog.Logger
	instruments *SourceMetrics
}

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	Metrics MetricsSource
	Logs    LogsSource
	Health  HealthChecker
	// Window is the trailing query window for metric and log queries.
	// Default: 5 minutes.
	Window time.Duration
	Logger zerolog.Logger
	// Instruments is optional; nil disables per-source query metrics.
	Instruments *SourceMetrics
}

// NewCollector creates a signal collector.
func NewCollector(cfg CollectorConfig) *Collector {
	window := cfg.Window
	if window == 0 {
		window = 5 * time.Minute
	}
	return &Collector{
		metrics:     cfg.Metrics,
		logs:        cfg.Logs,
		health:      cfg.Health,
		window:      window,
		logger:      cfg.Logger,
		instruments: cfg.Instruments,
	}
}

// Collect gathers all signal values for the team. Each source call carries
// its own timeout through the underlying client; a failed source leaves its
// neutral defaults in place.
func (c *Collector) Collect(ctx context.Context, profile *team.Profile) Readings {
	r := NeutralReadings()

	start := time.Now()
	c.collectMetrics(ctx, profile.Name, &r)
	c.instruments.RecordQuery(ctx, "metrics", profile.Name, time.Since(start), r.DegradedMetrics)

	start = time.Now()
	c.collectLogs(ctx, profile, &r)
	c.instruments.RecordQuery(ctx, "logs", profile.Name, time.Since(start), r.DegradedLogs)

	start = time.Now()
	c.collectHealth(ctx, profile, &r)
	c.instruments.RecordQuery(ctx, "healthcheck", profile.Name, time.Since(start), r.DegradedHealth)

	return r
}

func (c *Collector) collectMetrics(ctx context.Context, teamName string, r *Readings) {
	if c.metrics == nil {
		r.DegradedMetrics = true
		return
	}

	targets := []struct {
		metric string
		dest   *float64
	}{
		{MetricErrorRate, &r.ErrorRate},
		{MetricResponseP95, &r.LatencyP95MS},
		{MetricAvailability, &r.Availability},
		{MetricMemoryUsage, &r.MemoryUsage},
		{MetricCPUUsage, &r.CPUUsage},
		{MetricDiskUsage, &r.DiskUsage},
	}

	for _, t := range targets {
		value, present, err := c.metrics.Query(ctx, teamName, t.metric, c.window)
		if err != nil {
			c.logger.Warn().Err(err).Str("team", teamName).Str("metric", t.metric).
				Msg("metrics source unavailable, using neutral value")
			r.DegradedMetrics = true
			continue
		}
		if !present {
			r.DegradedMetrics = true
			continue
		}
		*t.dest = value
	}
}

func (c *Collector) collectLogs(ctx context.Context, profile *team.Profile, r *Readings) {
	if c.logs == nil {
		r.DegradedLogs = true
		return
	}

	errCount, err := c.logs.CountMatches(ctx, profile.Name, profile.LogPatterns.Error, c.window)
	if err != nil {
		c.logger.Warn().Err(err).Str("team", profile.Name).Msg("log source unavailable for error patterns")
		r.DegradedLogs = true
	} else {
		r.LogErrorCount = errCount
	}

	critCount, err := c.logs.CountMatches(ctx, profile.Name, profile.LogPatterns.Critical, c.window)
	if err != nil {
		c.logger.Warn().Err(err).Str("team", profile.Name).Msg("log source unavailable for critical patterns")
		r.DegradedLogs = true
	} else {
		r.LogCriticalCount = critCount
	}
}

func (c *Collector) collectHealth(ctx context.Context, profile *team.Profile, r *Readings) {
	if c.health == nil || len(profile.HealthCheckCommand) == 0 {
		r.DegradedHealth = true
		return
	}

	pct, err := c.health.Run(ctx, profile.Name, profile.HealthCheckCommand, profile.HealthCheckTimeout)
	if err != nil {
		c.logger.Warn().Err(err).Str("team", profile.Name).Msg("health check unavailable, using neutral value")
		r.DegradedHealth = true
		return
	}
	r.HealthCheckPercent = pct
}
