// Package trend classifies the short-term trajectory of a team's health
// scores from its bounded assessment history.
package trend

import (
	"time"

	"github.com/switchpilot/switchpilot/internal/health"
)

// AnalyzerConfig holds the trend policy constants.
type AnalyzerConfig struct {
	// Lookback is the history window considered. Default: 1 hour.
	Lookback time.Duration
	// MinSamples is the minimum history required for a verdict. Default: 3.
	MinSamples int
	// Margin is how far the current score must deviate from the window mean
	// to count as improving/degrading. Default: 10 points.
	Margin float64
	// MeanConfidence is the confidence assigned to mean-based verdicts.
	// Default: 0.5.
	MeanConfidence float64
	// MonotonicConfidence is the confidence assigned when the last three
	// assessments move strictly in one direction. Default: 0.9.
	MonotonicConfidence float64

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Analyzer computes trend verdicts.
type Analyzer struct {
	cfg AnalyzerConfig
}

// NewAnalyzer creates a trend analyzer, filling in default policy constants.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	if cfg.Lookback == 0 {
		cfg.Lookback = time.Hour
	}
	if cfg.MinSamples == 0 {
		cfg.MinSamples = 3
	}
	if cfg.Margin == 0 {
		cfg.Margin = 10
	}
	if cfg.MeanConfidence == 0 {
		cfg.MeanConfidence = 0.5
	}
	if cfg.MonotonicConfidence == 0 {
		cfg.MonotonicConfidence = 0.9
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Analyzer{cfg: cfg}
}

// Analyze classifies the trajectory of current against the team's history.
// History must be in chronological order and must not include current.
// Fewer than MinSamples historical assessments within the lookback window
// yields insufficient_data with confidence 0.
func (a *Analyzer) Analyze(history []*health.Assessment, current *health.Assessment) health.TrendInfo {
	cutoff := a.cfg.Now().Add(-a.cfg.Lookback)

	var window []*health.Assessment
	for _, h := range history {
		if h.Timestamp.After(cutoff) {
			window = append(window, h)
		}
	}

	if len(window) < a.cfg.MinSamples {
		return health.TrendInfo{Direction: health.TrendInsufficientData, Confidence: 0}
	}

	// A strict monotonic run across the last three scores, ending at the
	// current assessment, overrides the mean comparison when it fires.
	recent := append(append([]*health.Assessment(nil), window...), current)
	if len(recent) >= 3 {
		last3 := recent[len(recent)-3:]
		if last3[0].TotalScore < last3[1].TotalScore && last3[1].TotalScore < last3[2].TotalScore {
			return health.TrendInfo{Direction: health.TrendImproving, Confidence: a.cfg.MonotonicConfidence}
		}
		if last3[0].TotalScore > last3[1].TotalScore && last3[1].TotalScore > last3[2].TotalScore {
			return health.TrendInfo{Direction: health.TrendDegrading, Confidence: a.cfg.MonotonicConfidence}
		}
	}

	var sum float64
	for _, h := range window {
		sum += h.TotalScore
	}
	mean := sum / float64(len(window))

	switch {
	case current.TotalScore > mean+a.cfg.Margin:
		return health.TrendInfo{Direction: health.TrendImproving, Confidence: a.cfg.MeanConfidence}
	case current.TotalScore < mean-a.cfg.Margin:
		return health.TrendInfo{Direction: health.TrendDegrading, Confidence: a.cfg.MeanConfidence}
	default:
		return health.TrendInfo{Direction: health.TrendStable, Confidence: a.cfg.MeanConfidence}
	}
}
