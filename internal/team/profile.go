// Package team defines the per-team configuration profile consumed by the
// health engine and the switch orchestrator.
package team

import (
	"errors"
	"fmt"
	"time"

	"github.com/switchpilot/switchpilot/internal/fleet"
)

// Tier classifies how strictly a team is scored.
type Tier string

const (
	TierProduction    Tier = "production"
	TierNonProduction Tier = "non-production"
)

// AutomationLevel controls how much autonomy the controller has for a team.
type AutomationLevel string

const (
	// AutomationManual means no automated switching; operators act via the
	// API with an explicit force flag.
	AutomationManual AutomationLevel = "manual"
	// AutomationAssisted allows automated switching only when at least two
	// independent indicators agree.
	AutomationAssisted AutomationLevel = "assisted"
	// AutomationAutomatic allows automated switching on a single indicator.
	AutomationAutomatic AutomationLevel = "automatic"
)

// ParseAutomationLevel validates an automation level string.
func ParseAutomationLevel(s string) (AutomationLevel, error) {
	switch AutomationLevel(s) {
	case AutomationManual, AutomationAssisted, AutomationAutomatic:
		return AutomationLevel(s), nil
	default:
		return "", fmt.Errorf("unknown automation level %q", s)
	}
}

// Weights distributes scoring influence across the three signal sources.
// The three values must sum to 100.
type Weights struct {
	Metrics      int `yaml:"metrics" json:"metrics"`
	Logs         int `yaml:"logs" json:"logs"`
	HealthChecks int `yaml:"health_checks" json:"health_checks"`
}

// Thresholds are the per-metric limits beyond which proportional penalties
// apply.
type Thresholds struct {
	ErrorRateMax    float64 `yaml:"error_rate_max" json:"error_rate_max"`         // fraction, e.g. 0.05
	LatencyP95MaxMS float64 `yaml:"latency_p95_max_ms" json:"latency_p95_max_ms"` // milliseconds
	AvailabilityMin float64 `yaml:"availability_min" json:"availability_min"`     // percent, e.g. 99.0
	MemoryUsageMax  float64 `yaml:"memory_usage_max" json:"memory_usage_max"`     // percent
	CPUUsageMax     float64 `yaml:"cpu_usage_max" json:"cpu_usage_max"`           // percent
	DiskUsageMax    float64 `yaml:"disk_usage_max" json:"disk_usage_max"`         // percent
}

// PenaltyWeights scale the proportional deductions applied when a metric
// exceeds its threshold. Kept on the profile so scoring policy is tunable
// per team instead of baked into the scorer.
type PenaltyWeights struct {
	ErrorRate    float64 `yaml:"error_rate" json:"error_rate"`
	Latency      float64 `yaml:"latency" json:"latency"`
	Availability float64 `yaml:"availability" json:"availability"`
	Memory       float64 `yaml:"memory" json:"memory"`
	CPU          float64 `yaml:"cpu" json:"cpu"`
	Disk         float64 `yaml:"disk" json:"disk"`
	LogError     float64 `yaml:"log_error" json:"log_error"`
	LogCritical  float64 `yaml:"log_critical" json:"log_critical"`
}

// StatusCutpoints map a final score onto a health status, descending.
type StatusCutpoints struct {
	Healthy  float64 `yaml:"healthy" json:"healthy"`
	Warning  float64 `yaml:"warning" json:"warning"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// LogPatterns are the query pattern sets counted against the logs sub-score.
type LogPatterns struct {
	Error    []string `yaml:"error" json:"error"`
	Critical []string `yaml:"critical" json:"critical"`
}

// AutomationPolicy bounds what the controller may do on its own.
type AutomationPolicy struct {
	DefaultLevel      AutomationLevel   `yaml:"default_level" json:"default_level"`
	EnabledOperations []fleet.Operation `yaml:"enabled_operations" json:"enabled_operations"`
	MaxAttemptsHourly int               `yaml:"max_attempts_hourly" json:"max_attempts_hourly"`
	MaxAttemptsDaily  int               `yaml:"max_attempts_daily" json:"max_attempts_daily"`
	BackoffMultiplier float64           `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	BusinessHoursOnly bool              `yaml:"business_hours_only" json:"business_hours_only"`
}

// Profile is the static per-team configuration. It is loaded from the
// profiles file at startup, immutable during a run, and reloadable.
type Profile struct {
	Name             string           `yaml:"name" json:"name"`
	Tier             Tier             `yaml:"tier" json:"tier"`
	BlueGreenEnabled bool             `yaml:"blue_green_enabled" json:"blue_green_enabled"`
	Weights          Weights          `yaml:"weights" json:"weights"`
	Thresholds       Thresholds       `yaml:"thresholds" json:"thresholds"`
	Penalties        PenaltyWeights   `yaml:"penalty_weights" json:"penalty_weights"`
	Cutpoints        StatusCutpoints  `yaml:"status_cutpoints" json:"status_cutpoints"`
	LogPatterns      LogPatterns      `yaml:"log_patterns" json:"log_patterns"`
	Automation       AutomationPolicy `yaml:"automation" json:"automation"`

	// HealthCheckCommand is the per-team executable invoked for the
	// health-check signal source. Empty means the source is skipped.
	HealthCheckCommand []string      `yaml:"health_check_command" json:"health_check_command"`
	HealthCheckTimeout time.Duration `yaml:"health_check_timeout" json:"health_check_timeout"`
}

// Validation errors, reported at load time so decision time never sees a
// malformed profile.
var (
	ErrEmptyName         = errors.New("team name must not be empty")
	ErrWeightsSum        = errors.New("signal weights must sum to 100")
	ErrCutpointsOrder    = errors.New("status cutpoints must be strictly descending: healthy > warning > critical")
	ErrThresholdNegative = errors.New("thresholds must be positive")
)

// Validate checks profile invariants. Called once at configuration load.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return ErrEmptyName
	}
	if sum := p.Weights.Metrics + p.Weights.Logs + p.Weights.HealthChecks; sum != 100 {
		return fmt.Errorf("%w: team %q got %d", ErrWeightsSum, p.Name, sum)
	}
	if p.Weights.Metrics < 0 || p.Weights.Logs < 0 || p.Weights.HealthChecks < 0 {
		return fmt.Errorf("%w: team %q has a negative weight", ErrWeightsSum, p.Name)
	}
	if !(p.Cutpoints.Healthy > p.Cutpoints.Warning && p.Cutpoints.Warning > p.Cutpoints.Critical) {
		return fmt.Errorf("%w: team %q got healthy=%.1f warning=%.1f critical=%.1f",
			ErrCutpointsOrder, p.Name, p.Cutpoints.Healthy, p.Cutpoints.Warning, p.Cutpoints.Critical)
	}
	for name, v := range map[string]float64{
		"error_rate_max":     p.Thresholds.ErrorRateMax,
		"latency_p95_max_ms": p.Thresholds.LatencyP95MaxMS,
		"availability_min":   p.Thresholds.AvailabilityMin,
		"memory_usage_max":   p.Thresholds.MemoryUsageMax,
		"cpu_usage_max":      p.Thresholds.CPUUsageMax,
		"disk_usage_max":     p.Thresholds.DiskUsageMax,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: team %q %s=%.2f", ErrThresholdNegative, p.Name, name, v)
		}
	}
	if p.Automation.DefaultLevel != "" {
		if _, err := ParseAutomationLevel(string(p.Automation.DefaultLevel)); err != nil {
			return fmt.Errorf("team %q: %w", p.Name, err)
		}
	}
	return nil
}

// OperationEnabled reports whether the automation policy allows the
// controller to run the given operation for this team.
func (p *Profile) OperationEnabled(op fleet.Operation) bool {
	for _, enabled := range p.Automation.EnabledOperations {
		if enabled == op {
			return true
		}
	}
	return false
}

// DefaultProfile returns a profile with the standard defaults applied.
// Loaders overlay file values on top of this.
func DefaultProfile(name string) Profile {
	return Profile{
		Name:             name,
		Tier:             TierNonProduction,
		BlueGreenEnabled: true,
		Weights:          Weights{Metrics: 50, Logs: 30, HealthChecks: 20},
		Thresholds: Thresholds{
			ErrorRateMax:    0.05,
			LatencyP95MaxMS: 2000,
			AvailabilityMin: 99.0,
			MemoryUsageMax:  90,
			CPUUsageMax:     85,
			DiskUsageMax:    90,
		},
		Penalties: PenaltyWeights{
			ErrorRate:    40,
			Latency:      30,
			Availability: 50,
			Memory:       15,
			CPU:          15,
			Disk:         20,
			LogError:     2,
			LogCritical:  10,
		},
		Cutpoints: StatusCutpoints{Healthy: 85, Warning: 60, Critical: 40},
		LogPatterns: LogPatterns{
			Error:    []string{"ERROR", "Exception"},
			Critical: []string{"FATAL", "OutOfMemoryError", "panic:"},
		},
		Automation: AutomationPolicy{
			DefaultLevel:      AutomationManual,
			EnabledOperations: []fleet.Operation{fleet.OpSwitch},
			MaxAttemptsHourly: 2,
			MaxAttemptsDaily:  5,
			BackoffMultiplier: 2.0,
		},
		HealthCheckTimeout: 30 * time.Second,
	}
}
