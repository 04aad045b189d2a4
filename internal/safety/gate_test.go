package safety_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchpilot/switchpilot/internal/breaker"
	"github.com/switchpilot/switchpilot/internal/fleet"
	"github.com/switchpilot/switchpilot/internal/safety"
	"github.com/switchpilot/switchpilot/internal/store"
	"github.com/switchpilot/switchpilot/internal/team"
)

// A Tuesday at 10:00 local time, inside business hours.
var tuesdayMorning = time.Date(2026, 3, 10, 10, 0, 0, 0, time.Local)

type staticFlags struct {
	autoSwitchDisabled bool
}

func (f staticFlags) AutoSwitchDisabled(context.Context) bool { return f.autoSwitchDisabled }

type fixture struct {
	gate  *safety.Gate
	store store.Store
	now   time.Time
}

func newFixture(t *testing.T, flags safety.Flags) *fixture {
	t.Helper()

	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	f := &fixture{store: st, now: tuesdayMorning}
	nowFn := func() time.Time { return f.now }

	brk := breaker.New(st, breaker.Config{Now: nowFn}, zerolog.Nop())
	f.gate = safety.NewGate(st, brk, flags, safety.Config{Now: nowFn}, zerolog.Nop())
	return f
}

func (f *fixture) setLevel(t *testing.T, teamName string, level team.AutomationLevel) {
	t.Helper()
	err := f.store.Update(context.Background(), teamName, func(s *store.TeamState) error {
		s.Automation.Level = level
		return nil
	})
	require.NoError(t, err)
}

func (f *fixture) recordSwitch(t *testing.T, teamName string, at time.Time) {
	t.Helper()
	err := f.store.Update(context.Background(), teamName, func(s *store.TeamState) error {
		s.AppendSwitch(store.SwitchRecord{Team: teamName, Result: store.SwitchSuccess, Timestamp: at})
		s.RateLimits.Record(at, true)
		return nil
	})
	require.NoError(t, err)
}

func profile() *team.Profile {
	p := team.DefaultProfile("payments")
	return &p
}

func indicators(n int) fleet.IndicatorSet {
	all := []fleet.Indicator{
		fleet.IndicatorScoreCritical,
		fleet.IndicatorErrorRateExceeded,
		fleet.IndicatorAvailabilityLow,
	}
	return fleet.NewIndicatorSet(all[:n]...)
}

func TestGate_AutomationLevelQuorum(t *testing.T) {
	tests := []struct {
		name       string
		level      team.AutomationLevel
		indicators int
		allowed    bool
	}{
		{"manual always denies", team.AutomationManual, 3, false},
		{"assisted denies on one indicator", team.AutomationAssisted, 1, false},
		{"assisted allows on two indicators", team.AutomationAssisted, 2, true},
		{"automatic denies without indicators", team.AutomationAutomatic, 0, false},
		{"automatic allows on one indicator", team.AutomationAutomatic, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.setLevel(t, "payments", tt.level)

			v, err := f.gate.MayAutoSwitch(context.Background(), profile(), indicators(tt.indicators), false)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, v.Allowed)
			if !tt.allowed {
				assert.Equal(t, safety.CheckAutomationLevel, v.Check)
			}
		})
	}
}

func TestGate_KillSwitch(t *testing.T) {
	f := newFixture(t, staticFlags{autoSwitchDisabled: true})
	f.setLevel(t, "payments", team.AutomationAutomatic)

	v, err := f.gate.MayAutoSwitch(context.Background(), profile(), indicators(1), false)
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, safety.CheckKillSwitch, v.Check)
}

func TestGate_RateLimits(t *testing.T) {
	t.Run("hourly limit", func(t *testing.T) {
		f := newFixture(t, nil)
		f.setLevel(t, "payments", team.AutomationAutomatic)

		f.recordSwitch(t, "payments", f.now.Add(-10*time.Minute))
		f.recordSwitch(t, "payments", f.now.Add(-5*time.Minute))

		v, err := f.gate.MayAutoSwitch(context.Background(), profile(), indicators(1), false)
		require.NoError(t, err)
		assert.False(t, v.Allowed)
		assert.Equal(t, safety.CheckRateLimit, v.Check)
	})

	t.Run("daily limit", func(t *testing.T) {
		f := newFixture(t, nil)
		f.setLevel(t, "payments", team.AutomationAutomatic)

		// Five attempts spread across distinct hours of the same day.
		for i := 1; i <= 5; i++ {
			f.recordSwitch(t, "payments", f.now.Add(-time.Duration(i)*time.Hour))
		}

		v, err := f.gate.MayAutoSwitch(context.Background(), profile(), indicators(1), false)
		require.NoError(t, err)
		assert.False(t, v.Allowed)
		assert.Equal(t, safety.CheckRateLimit, v.Check)
	})

	t.Run("under both limits passes through", func(t *testing.T) {
		f := newFixture(t, nil)
		f.setLevel(t, "payments", team.AutomationAutomatic)

		f.recordSwitch(t, "payments", f.now.Add(-10*time.Minute))

		v, err := f.gate.MayAutoSwitch(context.Background(), profile(), indicators(1), false)
		require.NoError(t, err)
		assert.True(t, v.Allowed)
	})
}

func TestGate_BusinessHours(t *testing.T) {
	p := profile()
	p.Automation.BusinessHoursOnly = true

	tests := []struct {
		name    string
		now     time.Time
		allowed bool
	}{
		{"tuesday mid-morning", tuesdayMorning, true},
		{"tuesday before opening", time.Date(2026, 3, 10, 7, 59, 0, 0, time.Local), false},
		{"tuesday after closing", time.Date(2026, 3, 10, 18, 0, 0, 0, time.Local), false},
		{"saturday", time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local), false},
		{"sunday", time.Date(2026, 3, 15, 10, 0, 0, 0, time.Local), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.setLevel(t, "payments", team.AutomationAutomatic)
			f.now = tt.now

			v, err := f.gate.MayAutoSwitch(context.Background(), p, indicators(1), false)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, v.Allowed)
			if !tt.allowed {
				assert.Equal(t, safety.CheckBusinessHours, v.Check)
			}
		})
	}
}

func TestGate_Maintenance(t *testing.T) {
	f := newFixture(t, nil)
	f.setLevel(t, "payments", team.AutomationAutomatic)
	err := f.store.Update(context.Background(), "payments", func(s *store.TeamState) error {
		s.Maintenance = true
		return nil
	})
	require.NoError(t, err)

	v, err := f.gate.MayAutoSwitch(context.Background(), profile(), indicators(1), false)
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, safety.CheckMaintenance, v.Check)
}

func TestGate_Flapping(t *testing.T) {
	p := profile()
	// Lift the rate limits so flap detection is the check that fires.
	p.Automation.MaxAttemptsHourly = 100
	p.Automation.MaxAttemptsDaily = 100

	t.Run("five recent switches deny", func(t *testing.T) {
		f := newFixture(t, nil)
		f.setLevel(t, "payments", team.AutomationAutomatic)
		for i := 0; i < 5; i++ {
			f.recordSwitch(t, "payments", f.now.Add(-time.Duration(20-i)*time.Minute))
		}

		v, err := f.gate.MayAutoSwitch(context.Background(), p, indicators(1), false)
		require.NoError(t, err)
		assert.False(t, v.Allowed)
		assert.Equal(t, safety.CheckFlapping, v.Check)
		assert.True(t, v.Suppressed, "last switch is inside the stabilization period")
	})

	t.Run("not suppressed once the last switch ages out", func(t *testing.T) {
		f := newFixture(t, nil)
		f.setLevel(t, "payments", team.AutomationAutomatic)
		for i := 0; i < 5; i++ {
			f.recordSwitch(t, "payments", f.now.Add(-time.Duration(29-i)*time.Minute))
		}

		v, err := f.gate.MayAutoSwitch(context.Background(), p, indicators(1), false)
		require.NoError(t, err)
		assert.False(t, v.Allowed)
		assert.Equal(t, safety.CheckFlapping, v.Check)
		assert.False(t, v.Suppressed)
	})

	t.Run("old switches fall out of the window", func(t *testing.T) {
		f := newFixture(t, nil)
		f.setLevel(t, "payments", team.AutomationAutomatic)
		for i := 0; i < 5; i++ {
			f.recordSwitch(t, "payments", f.now.Add(-2*time.Hour))
		}

		v, err := f.gate.MayAutoSwitch(context.Background(), p, indicators(1), false)
		require.NoError(t, err)
		assert.True(t, v.Allowed)
	})
}

func TestGate_BreakerOverridesEverything(t *testing.T) {
	f := newFixture(t, nil)
	f.setLevel(t, "payments", team.AutomationAutomatic)
	err := f.store.Update(context.Background(), "payments", func(s *store.TeamState) error {
		cb := s.Breaker(fleet.OpSwitch)
		cb.Status = store.BreakerOpen
		cb.LastFailureAt = f.now.Add(-time.Minute)
		return nil
	})
	require.NoError(t, err)

	// Even a forced switch never bypasses an open breaker.
	v, err := f.gate.MayAutoSwitch(context.Background(), profile(), indicators(1), true)
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, safety.CheckCircuitBreaker, v.Check)
}

func TestGate_OverrideBypassesPolicyChecks(t *testing.T) {
	f := newFixture(t, staticFlags{autoSwitchDisabled: true})
	f.setLevel(t, "payments", team.AutomationManual)
	err := f.store.Update(context.Background(), "payments", func(s *store.TeamState) error {
		s.Maintenance = true
		return nil
	})
	require.NoError(t, err)

	v, err := f.gate.MayAutoSwitch(context.Background(), profile(), nil, true)
	require.NoError(t, err)
	assert.True(t, v.Allowed)
}
