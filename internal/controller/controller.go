// Package controller glues the health engine to the switch orchestrator:
// for each team it runs the strict sequential pipeline
// assess -> trend -> breaker snapshot -> persist -> safety gate -> switch.
package controller

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/switchpilot/switchpilot/internal/breaker"
	"github.com/switchpilot/switchpilot/internal/fleet"
	"github.com/switchpilot/switchpilot/internal/health"
	"github.com/switchpilot/switchpilot/internal/opsflags"
	"github.com/switchpilot/switchpilot/internal/platform"
	"github.com/switchpilot/switchpilot/internal/safety"
	"github.com/switchpilot/switchpilot/internal/store"
	"github.com/switchpilot/switchpilot/internal/switching"
	"github.com/switchpilot/switchpilot/internal/team"
	"github.com/switchpilot/switchpilot/internal/trend"
)

// ErrUnknownTeam is returned for teams without a profile.
var ErrUnknownTeam = fmt.Errorf("unknown team")

// ErrSwitchDenied is returned when the safety gate refuses a switch.
var ErrSwitchDenied = fmt.Errorf("switch denied")

// Deps bundles the controller's collaborators.
type Deps struct {
	Profiles     map[string]*team.Profile
	Scorer       *health.Scorer
	Analyzer     *trend.Analyzer
	Breaker      *breaker.Breaker
	Gate         *safety.Gate
	Orchestrator *switching.Orchestrator
	Store        store.Store
	Topology     platform.TopologyStore
	Flags        *opsflags.Service // optional
	Logger       zerolog.Logger
}

// Controller drives the per-team decision pipeline.
type Controller struct {
	profiles map[string]*team.Profile
	scorer   *health.Scorer
	analyzer *trend.Analyzer
	breaker  *breaker.Breaker
	gate     *safety.Gate
	orch     *switching.Orchestrator
	store    store.Store
	topology platform.TopologyStore
	flags    *opsflags.Service
	logger   zerolog.Logger
}

// New creates a controller.
func New(deps Deps) *Controller {
	return &Controller{
		profiles: deps.Profiles,
		scorer:   deps.Scorer,
		analyzer: deps.Analyzer,
		breaker:  deps.Breaker,
		gate:     deps.Gate,
		orch:     deps.Orchestrator,
		store:    deps.Store,
		topology: deps.Topology,
		flags:    deps.Flags,
		logger:   deps.Logger,
	}
}

// Teams returns the configured team names, sorted.
func (c *Controller) Teams() []string {
	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profile resolves a team profile.
func (c *Controller) Profile(teamName string) (*team.Profile, error) {
	p, ok := c.profiles[teamName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTeam, teamName)
	}
	return p, nil
}

// Assess runs the health pipeline for one team: score the signals, attach
// the trend verdict and a breaker snapshot, and append the assessment to
// the team's persisted history.
func (c *Controller) Assess(ctx context.Context, teamName string) (*health.Assessment, error) {
	profile, err := c.Profile(teamName)
	if err != nil {
		return nil, err
	}

	var assessment *health.Assessment
	if c.flags != nil && c.flags.CachedOnlySignals(ctx) {
		assessment = c.assessFromCache(ctx, profile)
	}
	if assessment == nil {
		assessment = c.scorer.Assess(ctx, profile)
	}

	history := c.history(ctx, teamName)
	ti := c.analyzer.Analyze(history, assessment)
	assessment.Trend = &ti

	if snap, err := c.breaker.Snapshot(ctx, teamName, fleet.OpSwitch); err == nil {
		assessment.Breaker = &health.BreakerSnapshot{
			Status:   string(snap.Status),
			Failures: snap.ConsecutiveFailures,
		}
	}

	err = c.store.Update(ctx, teamName, func(s *store.TeamState) error {
		s.AppendAssessment(assessment)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist assessment for team %s: %w", teamName, err)
	}
	return assessment, nil
}

// assessFromCache rescores the most recent persisted readings, used when
// the cached-only flag is set.
func (c *Controller) assessFromCache(ctx context.Context, profile *team.Profile) *health.Assessment {
	state, err := c.store.Get(ctx, profile.Name)
	if err != nil || len(state.Assessments) == 0 {
		return nil
	}
	last := state.Assessments[len(state.Assessments)-1]
	return c.scorer.Score(profile, last.Readings)
}

// Decision is the outcome of Decide.
type Decision struct {
	Team         string             `json:"team"`
	ShouldSwitch bool               `json:"should_switch"`
	Indicators   []fleet.Indicator  `json:"indicators,omitempty"`
	Verdict      safety.Verdict     `json:"verdict"`
	Assessment   *health.Assessment `json:"assessment,omitempty"`
}

// Decide assesses the team and consults the safety gate. It never executes
// a switch itself.
func (c *Controller) Decide(ctx context.Context, teamName string) (*Decision, error) {
	profile, err := c.Profile(teamName)
	if err != nil {
		return nil, err
	}

	assessment, err := c.Assess(ctx, teamName)
	if err != nil {
		return nil, err
	}

	indicators := c.indicatorsFor(profile, assessment)
	d := &Decision{
		Team:       teamName,
		Indicators: indicators.List(),
		Assessment: assessment,
	}

	// Only a degraded verdict can trigger a switch at all.
	if assessment.Status == health.StatusHealthy || assessment.Status == health.StatusWarning {
		d.Verdict = safety.Verdict{Allowed: false, Check: "health", Reason: fmt.Sprintf("status is %s", assessment.Status)}
		return d, nil
	}

	verdict, err := c.gate.MayAutoSwitch(ctx, profile, indicators, false)
	if err != nil {
		return nil, err
	}
	d.Verdict = verdict
	d.ShouldSwitch = verdict.Allowed
	return d, nil
}

// indicatorsFor derives the independent strong indicators from an
// assessment, for the automation-level quorum.
func (c *Controller) indicatorsFor(profile *team.Profile, a *health.Assessment) fleet.IndicatorSet {
	set := fleet.NewIndicatorSet()

	switch a.Status {
	case health.StatusCritical:
		set.Add(fleet.IndicatorScoreCritical)
	case health.StatusFailed:
		set.Add(fleet.IndicatorScoreFailed)
	}
	if a.Readings.ErrorRate > profile.Thresholds.ErrorRateMax {
		set.Add(fleet.IndicatorErrorRateExceeded)
	}
	if a.Readings.Availability < profile.Thresholds.AvailabilityMin {
		set.Add(fleet.IndicatorAvailabilityLow)
	}
	if !a.Readings.DegradedHealth && a.Readings.HealthCheckPercent < 50 {
		set.Add(fleet.IndicatorHealthCheckFailed)
	}
	if a.Trend != nil && a.Trend.Direction == health.TrendDegrading && a.Trend.Confidence >= 0.7 {
		set.Add(fleet.IndicatorTrendDegrading)
	}
	return set
}

// ExecuteSwitch runs a switch for the team. Without force, the safety gate
// must approve first (using the latest assessment's indicators); with
// force, every gate check except the circuit breaker is bypassed.
func (c *Controller) ExecuteSwitch(ctx context.Context, teamName string, target fleet.Color, reason string, force bool) (*switching.Result, error) {
	profile, err := c.Profile(teamName)
	if err != nil {
		return nil, err
	}

	if !force {
		decision, err := c.Decide(ctx, teamName)
		if err != nil {
			return nil, err
		}
		if !decision.ShouldSwitch {
			return nil, fmt.Errorf("%w: team %s, %s check: %s",
				ErrSwitchDenied, teamName, decision.Verdict.Check, decision.Verdict.Reason)
		}
	} else {
		verdict, err := c.gate.MayAutoSwitch(ctx, profile, nil, true)
		if err != nil {
			return nil, err
		}
		if !verdict.Allowed {
			return nil, fmt.Errorf("%w: team %s, %s check: %s",
				ErrSwitchDenied, teamName, verdict.Check, verdict.Reason)
		}
	}

	return c.orch.Execute(ctx, profile, target, reason, force)
}

// RunTeamCycle runs one full scheduled pipeline pass for a team and returns
// the decision made (and the switch result when one was executed).
func (c *Controller) RunTeamCycle(ctx context.Context, teamName string) (*Decision, *switching.Result, error) {
	decision, err := c.Decide(ctx, teamName)
	if err != nil {
		return nil, nil, err
	}
	if !decision.ShouldSwitch {
		return decision, nil, nil
	}

	profile, err := c.Profile(teamName)
	if err != nil {
		return decision, nil, err
	}

	reason := fmt.Sprintf("automated: status=%s score=%.1f indicators=%d",
		decision.Assessment.Status, decision.Assessment.TotalScore, len(decision.Indicators))
	result, err := c.orch.Execute(ctx, profile, "", reason, false)
	if err != nil {
		return decision, nil, err
	}
	return decision, result, nil
}

// history returns the team's persisted assessment history, oldest first.
func (c *Controller) history(ctx context.Context, teamName string) []*health.Assessment {
	state, err := c.store.Get(ctx, teamName)
	if err != nil {
		return nil
	}
	return state.Assessments
}

// Status is the operator-facing view of one team.
type Status struct {
	Team            string                    `json:"team"`
	ActiveColor     fleet.Color               `json:"active_color"`
	AutomationLevel team.AutomationLevel      `json:"automation_level"`
	Maintenance     bool                      `json:"maintenance"`
	CircuitBreaker  store.CircuitBreakerState `json:"circuit_breaker"`
	RateLimits      store.RateLimitCounters   `json:"rate_limits"`
	RecentSwitches  []store.SwitchRecord      `json:"recent_switches,omitempty"`
	LastAssessment  *health.Assessment        `json:"last_assessment,omitempty"`
}

// GetStatus assembles the status view for a team.
func (c *Controller) GetStatus(ctx context.Context, teamName string) (*Status, error) {
	if _, err := c.Profile(teamName); err != nil {
		return nil, err
	}

	st := &Status{Team: teamName}

	color, err := c.topology.ActiveColor(ctx, teamName)
	if err != nil {
		return nil, fmt.Errorf("status for team %s: %w", teamName, err)
	}
	st.ActiveColor = color

	state, err := c.store.Get(ctx, teamName)
	if err != nil {
		state = store.NewTeamState(teamName)
	}
	st.AutomationLevel = state.Automation.Level
	st.Maintenance = state.Maintenance
	st.RateLimits = state.RateLimits
	if cb, ok := state.Breakers[string(fleet.OpSwitch)]; ok {
		st.CircuitBreaker = *cb
	} else {
		st.CircuitBreaker = store.CircuitBreakerState{Status: store.BreakerClosed}
	}
	if n := len(state.Switches); n > 0 {
		from := n - 10
		if from < 0 {
			from = 0
		}
		st.RecentSwitches = state.Switches[from:]
	}
	if n := len(state.Assessments); n > 0 {
		st.LastAssessment = state.Assessments[n-1]
	}
	return st, nil
}

// AutomationLevel returns the team's current automation level, manual for
// teams without persisted state.
func (c *Controller) AutomationLevel(ctx context.Context, teamName string) team.AutomationLevel {
	state, err := c.store.Get(ctx, teamName)
	if err != nil || state.Automation.Level == "" {
		return team.AutomationManual
	}
	return state.Automation.Level
}

// SetAutomationLevel updates the team's automation level.
func (c *Controller) SetAutomationLevel(ctx context.Context, teamName string, level team.AutomationLevel) error {
	if _, err := c.Profile(teamName); err != nil {
		return err
	}
	if _, err := team.ParseAutomationLevel(string(level)); err != nil {
		return err
	}
	return c.store.Update(ctx, teamName, func(s *store.TeamState) error {
		s.Automation = store.AutomationState{Level: level, UpdatedAt: time.Now().UTC()}
		return nil
	})
}

// SetMaintenance sets or clears the team's maintenance window flag.
func (c *Controller) SetMaintenance(ctx context.Context, teamName string, on bool) error {
	if _, err := c.Profile(teamName); err != nil {
		return err
	}
	return c.store.Update(ctx, teamName, func(s *store.TeamState) error {
		s.Maintenance = on
		return nil
	})
}

// ResetCircuitBreaker forces the team's switch breaker closed.
func (c *Controller) ResetCircuitBreaker(ctx context.Context, teamName string) error {
	if _, err := c.Profile(teamName); err != nil {
		return err
	}
	return c.breaker.Reset(ctx, teamName, fleet.OpSwitch)
}
