// Package safety implements the gate that stands between a degraded health
// verdict and an automated switch: circuit breaker, rate limits, business
// hours, maintenance windows, flapping detection, and the automation-level
// indicator quorum.
package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/switchpilot/switchpilot/internal/breaker"
	"github.com/switchpilot/switchpilot/internal/fleet"
	"github.com/switchpilot/switchpilot/internal/store"
	"github.com/switchpilot/switchpilot/internal/team"
)

// Check names reported in denials, so operators can diagnose exactly why an
// automated switch did not happen.
const (
	CheckKillSwitch      = "kill_switch"
	CheckCircuitBreaker  = "circuit_breaker"
	CheckRateLimit       = "rate_limit"
	CheckBusinessHours   = "business_hours"
	CheckMaintenance     = "maintenance"
	CheckFlapping        = "flapping"
	CheckAutomationLevel = "automation_level"
)

// Flags is the operational kill-switch dependency. Optional.
type Flags interface {
	AutoSwitchDisabled(ctx context.Context) bool
}

// Config holds the gate policy constants.
type Config struct {
	// FlapWindow is the sliding window for flap detection. Default: 30m.
	FlapWindow time.Duration
	// FlapThreshold is the attempt count within FlapWindow that counts as
	// flapping. Default: 5.
	FlapThreshold int
	// PostFlapStabilization marks denials as suppressed (a stronger signal
	// for dashboards) while a recent switch is this fresh. Default: 15m.
	PostFlapStabilization time.Duration
	// BusinessStartHour and BusinessEndHour bound the Mon-Fri working-hours
	// policy, in system-local time. Defaults: 8 and 18.
	BusinessStartHour int
	BusinessEndHour   int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Gate evaluates whether an automated switch may proceed.
type Gate struct {
	store   store.Store
	breaker *breaker.Breaker
	flags   Flags
	cfg     Config
	logger  zerolog.Logger
}

// Verdict is the gate's decision. Denials always name the failing check.
type Verdict struct {
	Allowed    bool   `json:"allowed"`
	Check      string `json:"check,omitempty"` // failing check when denied
	Reason     string `json:"reason,omitempty"`
	Suppressed bool   `json:"suppressed,omitempty"`
}

// NewGate creates a safety gate. flags may be nil.
func NewGate(s store.Store, b *breaker.Breaker, flags Flags, cfg Config, logger zerolog.Logger) *Gate {
	if cfg.FlapWindow == 0 {
		cfg.FlapWindow = 30 * time.Minute
	}
	if cfg.FlapThreshold == 0 {
		cfg.FlapThreshold = 5
	}
	if cfg.PostFlapStabilization == 0 {
		cfg.PostFlapStabilization = 15 * time.Minute
	}
	if cfg.BusinessStartHour == 0 {
		cfg.BusinessStartHour = 8
	}
	if cfg.BusinessEndHour == 0 {
		cfg.BusinessEndHour = 18
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gate{store: s, breaker: b, flags: flags, cfg: cfg, logger: logger}
}

// MayAutoSwitch runs every check in order. With override set, all checks are
// bypassed except the circuit breaker (locking, the other non-bypassable
// guard, is enforced by the orchestrator itself).
func (g *Gate) MayAutoSwitch(ctx context.Context, profile *team.Profile, indicators fleet.IndicatorSet, override bool) (Verdict, error) {
	// Circuit breaker: never bypassable.
	decision, err := g.breaker.Check(ctx, profile.Name, fleet.OpSwitch)
	if err != nil {
		return Verdict{}, fmt.Errorf("breaker check for team %s: %w", profile.Name, err)
	}
	if !decision.Allowed {
		return deny(CheckCircuitBreaker, fmt.Sprintf("circuit breaker open, retry in %s", decision.RetryAfter.Round(time.Second))), nil
	}

	if override {
		return Verdict{Allowed: true}, nil
	}

	if g.flags != nil && g.flags.AutoSwitchDisabled(ctx) {
		return deny(CheckKillSwitch, "automatic switching is disabled fleet-wide"), nil
	}

	state, err := g.store.Get(ctx, profile.Name)
	if err != nil {
		// No persisted state yet: nothing to rate-limit or flap on.
		state = store.NewTeamState(profile.Name)
	}

	now := g.cfg.Now()

	if v := g.checkRateLimit(profile, state, now); !v.Allowed {
		return v, nil
	}
	if v := g.checkBusinessHours(profile, now); !v.Allowed {
		return v, nil
	}
	if state.Maintenance {
		return deny(CheckMaintenance, "team is in a maintenance window"), nil
	}
	if v := g.checkFlapping(state, now); !v.Allowed {
		return v, nil
	}
	return g.checkAutomationLevel(state, indicators), nil
}

func (g *Gate) checkRateLimit(profile *team.Profile, state *store.TeamState, now time.Time) Verdict {
	maxHourly := profile.Automation.MaxAttemptsHourly
	maxDaily := profile.Automation.MaxAttemptsDaily

	if maxHourly > 0 && state.RateLimits.AttemptedInHour(now) >= maxHourly {
		return deny(CheckRateLimit, fmt.Sprintf("hourly switch limit reached (%d)", maxHourly))
	}
	if maxDaily > 0 && state.RateLimits.AttemptedInDay(now) >= maxDaily {
		return deny(CheckRateLimit, fmt.Sprintf("daily switch limit reached (%d)", maxDaily))
	}
	return Verdict{Allowed: true}
}

// checkBusinessHours enforces Mon-Fri working hours in system-local time
// when the team's policy asks for it.
func (g *Gate) checkBusinessHours(profile *team.Profile, now time.Time) Verdict {
	if !profile.Automation.BusinessHoursOnly {
		return Verdict{Allowed: true}
	}
	wd := now.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return deny(CheckBusinessHours, "outside business hours (weekend)")
	}
	if now.Hour() < g.cfg.BusinessStartHour || now.Hour() >= g.cfg.BusinessEndHour {
		return deny(CheckBusinessHours,
			fmt.Sprintf("outside business hours (%02d:00-%02d:00 Mon-Fri)", g.cfg.BusinessStartHour, g.cfg.BusinessEndHour))
	}
	return Verdict{Allowed: true}
}

func (g *Gate) checkFlapping(state *store.TeamState, now time.Time) Verdict {
	recent := state.SwitchesSince(now.Add(-g.cfg.FlapWindow))
	if recent < g.cfg.FlapThreshold {
		return Verdict{Allowed: true}
	}

	v := deny(CheckFlapping,
		fmt.Sprintf("%d switches within %s indicates flapping", recent, g.cfg.FlapWindow))
	if last := state.LastSwitch(); last != nil && now.Sub(last.Timestamp) < g.cfg.PostFlapStabilization {
		v.Suppressed = true
		v.Reason += "; inside post-flap stabilization period"
	}
	return v
}

// checkAutomationLevel requires the indicator quorum for the team's level:
// manual denies outright, assisted needs two independent indicators,
// automatic needs one.
func (g *Gate) checkAutomationLevel(state *store.TeamState, indicators fleet.IndicatorSet) Verdict {
	switch state.Automation.Level {
	case team.AutomationManual:
		return deny(CheckAutomationLevel, "automation level is manual; use force to switch")
	case team.AutomationAssisted:
		if len(indicators) < 2 {
			return deny(CheckAutomationLevel,
				fmt.Sprintf("assisted mode requires 2 independent indicators, have %d", len(indicators)))
		}
	case team.AutomationAutomatic:
		if len(indicators) < 1 {
			return deny(CheckAutomationLevel, "no strong indicators present")
		}
	default:
		return deny(CheckAutomationLevel, fmt.Sprintf("unknown automation level %q", state.Automation.Level))
	}
	return Verdict{Allowed: true}
}

func deny(check, reason string) Verdict {
	return Verdict{Allowed: false, Check: check, Reason: reason}
}
