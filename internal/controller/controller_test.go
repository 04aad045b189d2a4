package controller_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchpilot/switchpilot/internal/breaker"
	"github.com/switchpilot/switchpilot/internal/controller"
	"github.com/switchpilot/switchpilot/internal/fleet"
	"github.com/switchpilot/switchpilot/internal/health"
	"github.com/switchpilot/switchpilot/internal/safety"
	"github.com/switchpilot/switchpilot/internal/signal"
	"github.com/switchpilot/switchpilot/internal/store"
	"github.com/switchpilot/switchpilot/internal/switching"
	"github.com/switchpilot/switchpilot/internal/team"
	"github.com/switchpilot/switchpilot/internal/trend"
)

type staticCollector struct {
	readings signal.Readings
}

func (c *staticCollector) Collect(context.Context, *team.Profile) signal.Readings {
	return c.readings
}

type memTopology struct {
	active map[string]fleet.Color
}

func (m *memTopology) ActiveColor(_ context.Context, teamName string) (fleet.Color, error) {
	return m.active[teamName], nil
}

func (m *memTopology) SetActiveColor(_ context.Context, teamName string, color fleet.Color) error {
	m.active[teamName] = color
	return nil
}

type okTraffic struct{}

func (okTraffic) Healthy(context.Context) bool { return true }

func (okTraffic) EnableBackend(context.Context, string, fleet.Color) error { return nil }

func (okTraffic) DisableBackend(context.Context, string, fleet.Color) error { return nil }

func (okTraffic) ProbeBackend(context.Context, string, fleet.Color) error { return nil }

type nopBackup struct{}

func (nopBackup) Backup(context.Context, string, fleet.Color) error { return nil }

type nopSyncer struct{}

func (nopSyncer) Sync(context.Context, string, fleet.Color, fleet.Color) error { return nil }

type ctrlHarness struct {
	ctrl      *controller.Controller
	store     store.Store
	topology  *memTopology
	collector *staticCollector
}

func newController(t *testing.T) *ctrlHarness {
	t.Helper()

	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	h := &ctrlHarness{
		store:     st,
		topology:  &memTopology{active: map[string]fleet.Color{"payments": fleet.Blue}},
		collector: &staticCollector{readings: signal.NeutralReadings()},
	}

	profile := team.DefaultProfile("payments")
	profiles := map[string]*team.Profile{"payments": &profile}

	brk := breaker.New(st, breaker.Config{}, zerolog.Nop())
	gate := safety.NewGate(st, brk, nil, safety.Config{}, zerolog.Nop())
	orch := switching.New(switching.Deps{
		Store:    st,
		Locks:    store.NewLockManager(st),
		Breaker:  brk,
		Topology: h.topology,
		Traffic:  okTraffic{},
		Backup:   nopBackup{},
		Syncer:   nopSyncer{},
		Logger:   zerolog.Nop(),
	}, switching.Config{
		LockWait: time.Second,
		Sleep:    func(context.Context, time.Duration) error { return nil },
	})

	h.ctrl = controller.New(controller.Deps{
		Profiles:     profiles,
		Scorer:       health.NewScorer(health.ScorerConfig{Collector: h.collector, Logger: zerolog.Nop()}),
		Analyzer:     trend.NewAnalyzer(trend.AnalyzerConfig{}),
		Breaker:      brk,
		Gate:         gate,
		Orchestrator: orch,
		Store:        st,
		Topology:     h.topology,
		Logger:       zerolog.Nop(),
	})
	return h
}

// degrade sets readings that score as failed and trip three independent
// indicators at once.
func (h *ctrlHarness) degrade() {
	r := signal.NeutralReadings()
	r.ErrorRate = 0.20
	r.HealthCheckPercent = 0
	r.LogErrorCount = 30
	h.collector.readings = r
}

func (h *ctrlHarness) setLevel(t *testing.T, level team.AutomationLevel) {
	t.Helper()
	require.NoError(t, h.ctrl.SetAutomationLevel(context.Background(), "payments", level))
}

func TestController_Teams(t *testing.T) {
	h := newController(t)
	assert.Equal(t, []string{"payments"}, h.ctrl.Teams())
}

func TestController_UnknownTeam(t *testing.T) {
	h := newController(t)
	ctx := context.Background()

	_, err := h.ctrl.Assess(ctx, "ghost")
	assert.ErrorIs(t, err, controller.ErrUnknownTeam)

	_, err = h.ctrl.GetStatus(ctx, "ghost")
	assert.ErrorIs(t, err, controller.ErrUnknownTeam)

	assert.ErrorIs(t, h.ctrl.SetMaintenance(ctx, "ghost", true), controller.ErrUnknownTeam)
}

func TestController_AssessPersistsWithTrendAndBreaker(t *testing.T) {
	h := newController(t)
	ctx := context.Background()

	a, err := h.ctrl.Assess(ctx, "payments")
	require.NoError(t, err)

	assert.Equal(t, health.StatusHealthy, a.Status)
	require.NotNil(t, a.Trend)
	assert.Equal(t, health.TrendInsufficientData, a.Trend.Direction)
	require.NotNil(t, a.Breaker)
	assert.Equal(t, string(store.BreakerClosed), a.Breaker.Status)

	state, err := h.store.Get(ctx, "payments")
	require.NoError(t, err)
	require.Len(t, state.Assessments, 1)

	// Enough history accumulated: the trend verdict firms up.
	for i := 0; i < 3; i++ {
		_, err = h.ctrl.Assess(ctx, "payments")
		require.NoError(t, err)
	}
	a, err = h.ctrl.Assess(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, health.TrendStable, a.Trend.Direction)
}

func TestController_DecideHealthyNeverSwitches(t *testing.T) {
	h := newController(t)
	h.setLevel(t, team.AutomationAutomatic)

	d, err := h.ctrl.Decide(context.Background(), "payments")
	require.NoError(t, err)

	assert.False(t, d.ShouldSwitch)
	assert.Equal(t, "health", d.Verdict.Check)
	assert.Empty(t, d.Indicators)
}

func TestController_DecideDegradedAutomatic(t *testing.T) {
	h := newController(t)
	h.setLevel(t, team.AutomationAutomatic)
	h.degrade()

	d, err := h.ctrl.Decide(context.Background(), "payments")
	require.NoError(t, err)

	assert.True(t, d.ShouldSwitch)
	assert.True(t, d.Verdict.Allowed)
	assert.Equal(t, health.StatusFailed, d.Assessment.Status)
	assert.Contains(t, d.Indicators, fleet.IndicatorScoreFailed)
	assert.Contains(t, d.Indicators, fleet.IndicatorErrorRateExceeded)
	assert.Contains(t, d.Indicators, fleet.IndicatorHealthCheckFailed)
}

func TestController_DecideDegradedManualIsDenied(t *testing.T) {
	h := newController(t)
	h.degrade()

	d, err := h.ctrl.Decide(context.Background(), "payments")
	require.NoError(t, err)

	assert.False(t, d.ShouldSwitch)
	assert.Equal(t, safety.CheckAutomationLevel, d.Verdict.Check)
}

func TestController_ExecuteSwitchDeniedWithoutForce(t *testing.T) {
	h := newController(t)
	h.degrade() // manual level: gate still says no

	_, err := h.ctrl.ExecuteSwitch(context.Background(), "payments", fleet.Green, "try", false)
	assert.ErrorIs(t, err, controller.ErrSwitchDenied)
	assert.Equal(t, fleet.Blue, h.topology.active["payments"], "denied switch must not touch topology")
}

func TestController_ExecuteSwitchForced(t *testing.T) {
	h := newController(t)

	res, err := h.ctrl.ExecuteSwitch(context.Background(), "payments", fleet.Green, "drill", true)
	require.NoError(t, err)

	assert.Equal(t, store.SwitchSuccess, res.Outcome)
	assert.Equal(t, fleet.Green, h.topology.active["payments"])
}

func TestController_RunTeamCycleSwitchesWhenDegraded(t *testing.T) {
	h := newController(t)
	h.setLevel(t, team.AutomationAutomatic)
	h.degrade()

	d, res, err := h.ctrl.RunTeamCycle(context.Background(), "payments")
	require.NoError(t, err)

	assert.True(t, d.ShouldSwitch)
	require.NotNil(t, res)
	assert.Equal(t, store.SwitchSuccess, res.Outcome)
	assert.Equal(t, fleet.Green, h.topology.active["payments"], "empty target resolves to the standby color")
}

func TestController_RunTeamCycleHealthyIsQuiet(t *testing.T) {
	h := newController(t)
	h.setLevel(t, team.AutomationAutomatic)

	d, res, err := h.ctrl.RunTeamCycle(context.Background(), "payments")
	require.NoError(t, err)

	assert.False(t, d.ShouldSwitch)
	assert.Nil(t, res)
}

func TestController_AutomationLevel(t *testing.T) {
	h := newController(t)
	ctx := context.Background()

	assert.Equal(t, team.AutomationManual, h.ctrl.AutomationLevel(ctx, "payments"))

	require.NoError(t, h.ctrl.SetAutomationLevel(ctx, "payments", team.AutomationAssisted))
	assert.Equal(t, team.AutomationAssisted, h.ctrl.AutomationLevel(ctx, "payments"))

	assert.Error(t, h.ctrl.SetAutomationLevel(ctx, "payments", team.AutomationLevel("yolo")))
}

func TestController_GetStatus(t *testing.T) {
	h := newController(t)
	ctx := context.Background()

	_, err := h.ctrl.Assess(ctx, "payments")
	require.NoError(t, err)
	_, err = h.ctrl.ExecuteSwitch(ctx, "payments", fleet.Green, "drill", true)
	require.NoError(t, err)

	st, err := h.ctrl.GetStatus(ctx, "payments")
	require.NoError(t, err)

	assert.Equal(t, fleet.Green, st.ActiveColor)
	assert.Equal(t, team.AutomationManual, st.AutomationLevel)
	require.Len(t, st.RecentSwitches, 1)
	assert.Equal(t, store.SwitchSuccess, st.RecentSwitches[0].Result)
	require.NotNil(t, st.LastAssessment)
	assert.Equal(t, store.BreakerClosed, st.CircuitBreaker.Status)
}
