// Package health implements the health assessment engine: per-team scoring
// of signal readings into a 0-100 score and a status classification.
package health

import (
	"time"

	"github.com/switchpilot/switchpilot/internal/signal"
)

// Status classifies a team's final health score.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusFailed   Status = "failed"
)

// TrendDirection classifies the short-term score trajectory.
type TrendDirection string

const (
	TrendImproving        TrendDirection = "improving"
	TrendDegrading        TrendDirection = "degrading"
	TrendStable           TrendDirection = "stable"
	TrendInsufficientData TrendDirection = "insufficient_data"
)

// TrendInfo is the trend analyzer verdict attached to an assessment.
type TrendInfo struct {
	Direction  TrendDirection `json:"direction"`
	Confidence float64        `json:"confidence"` // 0..1
}

// BreakerSnapshot records the circuit breaker state at assessment time, for
// audit. Plain strings so the snapshot survives serialization unchanged.
type BreakerSnapshot struct {
	Status   string `json:"status"`
	Failures int    `json:"failures"`
}

// Assessment is the result of one evaluation cycle for one team. Immutable
// once written; appended to the team's bounded history.
type Assessment struct {
	Team      string          `json:"team"`
	Timestamp time.Time       `json:"timestamp"`
	Readings  signal.Readings `json:"readings"`

	MetricsScore float64 `json:"metrics_score"`
	LogsScore    float64 `json:"logs_score"`
	HealthScore  float64 `json:"health_score"`
	TotalScore   float64 `json:"total_score"`

	Status Status `json:"status"`

	Trend   *TrendInfo       `json:"trend,omitempty"`
	Breaker *BreakerSnapshot `json:"breaker,omitempty"`
}

// DegradedInput reports whether any signal source was unavailable when the
// assessment was computed.
func (a *Assessment) DegradedInput() bool {
	return a.Readings.DegradedMetrics || a.Readings.DegradedLogs || a.Readings.DegradedHealth
}
