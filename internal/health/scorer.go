package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/switchpilot/switchpilot/internal/signal"
	"github.com/switchpilot/switchpilot/internal/team"
)

// Collector is the signal-fusion dependency of the scorer.
type Collector interface {
	Collect(ctx context.Context, profile *team.Profile) signal.Readings
}

// Scorer turns signal readings into a weighted health assessment.
type Scorer struct {
	collector Collector
	logger    zerolog.Logger
	now       func() time.Time
}

// ScorerConfig configures a Scorer.
type ScorerConfig struct {
	Collector Collector
	Logger    zerolog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewScorer creates a health scorer.
func NewScorer(cfg ScorerConfig) *Scorer {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Scorer{
		collector: cfg.Collector,
		logger:    cfg.Logger,
		now:       now,
	}
}

// Assess collects signals for the team and computes its assessment.
// Persistence of the result is the caller's responsibility.
func (s *Scorer) Assess(ctx context.Context, profile *team.Profile) *Assessment {
	readings := s.collector.Collect(ctx, profile)
	return s.Score(profile, readings)
}

// Score computes the assessment for already-collected readings.
func (s *Scorer) Score(profile *team.Profile, readings signal.Readings) *Assessment {
	a := &Assessment{
		Team:         profile.Name,
		Timestamp:    s.now(),
		Readings:     readings,
		MetricsScore: metricsScore(profile, readings),
		LogsScore:    logsScore(profile, readings),
		HealthScore:  clamp(readings.HealthCheckPercent),
	}

	w := profile.Weights
	total := (a.MetricsScore*float64(w.Metrics) +
		a.LogsScore*float64(w.Logs) +
		a.HealthScore*float64(w.HealthChecks)) / 100

	a.TotalScore = clamp(tierAdjust(profile.Tier, total))
	a.Status = classify(profile.Cutpoints, a.TotalScore)

	if a.DegradedInput() {
		s.logger.Debug().Str("team", profile.Name).
			Bool("metrics", readings.DegradedMetrics).
			Bool("logs", readings.DegradedLogs).
			Bool("health", readings.DegradedHealth).
			Msg("assessment computed with degraded input")
	}
	return a
}

// metricsScore starts at 100 and applies proportional penalties: the
// deduction scales with how far a metric is over its threshold, so a large
// overshoot degrades the score faster than a small one.
func metricsScore(profile *team.Profile, r signal.Readings) float64 {
	t := profile.Thresholds
	p := profile.Penalties
	score := 100.0

	score -= overagePenalty(r.ErrorRate, t.ErrorRateMax, p.ErrorRate)
	score -= overagePenalty(r.LatencyP95MS, t.LatencyP95MaxMS, p.Latency)
	score -= shortfallPenalty(r.Availability, t.AvailabilityMin, p.Availability)
	score -= overagePenalty(r.MemoryUsage, t.MemoryUsageMax, p.Memory)
	score -= overagePenalty(r.CPUUsage, t.CPUUsageMax, p.CPU)
	score -= overagePenalty(r.DiskUsage, t.DiskUsageMax, p.Disk)

	return clamp(score)
}

// logsScore penalizes linearly per error occurrence (small) and per critical
// occurrence (large).
func logsScore(profile *team.Profile, r signal.Readings) float64 {
	p := profile.Penalties
	score := 100.0
	score -= float64(r.LogErrorCount) * p.LogError
	score -= float64(r.LogCriticalCount) * p.LogCritical
	return clamp(score)
}

// overagePenalty returns weight * (actual-threshold)/threshold when actual
// exceeds the threshold, zero otherwise.
func overagePenalty(actual, threshold, weight float64) float64 {
	if threshold <= 0 || actual <= threshold {
		return 0
	}
	return (actual - threshold) / threshold * weight
}

// shortfallPenalty is the mirror of overagePenalty for metrics that must
// stay above a minimum (availability).
func shortfallPenalty(actual, minimum, weight float64) float64 {
	if minimum <= 0 || actual >= minimum {
		return 0
	}
	return (minimum - actual) / minimum * weight
}

// tierAdjust applies the tier policy curve. Production teams are scored more
// strictly near the top: the portion of the raw score above 90 is halved, so
// a marginally passing production team does not read as pristine. Teams in
// other tiers get leniency near the bottom: a quarter of the gap below 20 is
// restored, which keeps noisy dev environments out of permanent "failed".
func tierAdjust(tier team.Tier, score float64) float64 {
	switch {
	case tier == team.TierProduction && score > 90:
		return 90 + (score-90)*0.5
	case tier != team.TierProduction && score < 20:
		return score + (20-score)*0.25
	default:
		return score
	}
}

func classify(c team.StatusCutpoints, score float64) Status {
	switch {
	case score >= c.Healthy:
		return StatusHealthy
	case score >= c.Warning:
		return StatusWarning
	case score >= c.Critical:
		return StatusCritical
	default:
		return StatusFailed
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
