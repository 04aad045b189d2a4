package switching_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchpilot/switchpilot/internal/breaker"
	"github.com/switchpilot/switchpilot/internal/fleet"
	"github.com/switchpilot/switchpilot/internal/notify"
	"github.com/switchpilot/switchpilot/internal/store"
	"github.com/switchpilot/switchpilot/internal/switching"
	"github.com/switchpilot/switchpilot/internal/team"
)

type fakeTopology struct {
	mu     sync.Mutex
	active map[string]fleet.Color
	setErr error
}

func (f *fakeTopology) ActiveColor(_ context.Context, teamName string) (fleet.Color, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[teamName], nil
}

func (f *fakeTopology) SetActiveColor(_ context.Context, teamName string, color fleet.Color) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.active[teamName] = color
	return nil
}

type fakeTraffic struct {
	unhealthy bool
	// enableErrFor fails EnableBackend for specific colors.
	enableErrFor map[fleet.Color]error
	probeErr     error
	// probeErrAfterEnable makes probes of the given color fail only once a
	// backend has been enabled, so pre-validation passes and post-validation
	// fails while the rollback target still probes clean.
	probeErrAfterEnable fleet.Color

	enabled  []fleet.Color
	disabled []fleet.Color
}

func (f *fakeTraffic) Healthy(context.Context) bool { return !f.unhealthy }

func (f *fakeTraffic) EnableBackend(_ context.Context, _ string, color fleet.Color) error {
	if err := f.enableErrFor[color]; err != nil {
		return err
	}
	f.enabled = append(f.enabled, color)
	return nil
}

func (f *fakeTraffic) DisableBackend(_ context.Context, _ string, color fleet.Color) error {
	f.disabled = append(f.disabled, color)
	return nil
}

func (f *fakeTraffic) ProbeBackend(_ context.Context, _ string, color fleet.Color) error {
	if f.probeErr != nil {
		return f.probeErr
	}
	if f.probeErrAfterEnable != "" && color == f.probeErrAfterEnable && len(f.enabled) > 0 {
		return errors.New("probe failed")
	}
	return nil
}

type fakeBackup struct{ err error }

func (f fakeBackup) Backup(context.Context, string, fleet.Color) error { return f.err }

type fakeSyncer struct{ err error }

func (f fakeSyncer) Sync(context.Context, string, fleet.Color, fleet.Color) error { return f.err }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

type harness struct {
	orch     *switching.Orchestrator
	store    store.Store
	locks    *store.LockManager
	topology *fakeTopology
	traffic  *fakeTraffic
	notifier *recordingNotifier
}

func newHarness(t *testing.T, traffic *fakeTraffic, backup fakeBackup, syncer fakeSyncer) *harness {
	t.Helper()

	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	h := &harness{
		store:    st,
		locks:    store.NewLockManager(st),
		topology: &fakeTopology{active: map[string]fleet.Color{"payments": fleet.Blue}},
		traffic:  traffic,
		notifier: &recordingNotifier{},
	}

	brk := breaker.New(st, breaker.Config{}, zerolog.Nop())
	h.orch = switching.New(switching.Deps{
		Store:    st,
		Locks:    h.locks,
		Breaker:  brk,
		Topology: h.topology,
		Traffic:  traffic,
		Backup:   backup,
		Syncer:   syncer,
		Notifier: h.notifier,
		Logger:   zerolog.Nop(),
	}, switching.Config{
		LockWait:      time.Second,
		Sleep:         func(context.Context, time.Duration) error { return nil },
		ProbeInterval: time.Millisecond,
	})
	return h
}

func (h *harness) state(t *testing.T) *store.TeamState {
	t.Helper()
	s, err := h.store.Get(context.Background(), "payments")
	require.NoError(t, err)
	return s
}

func testProfile() *team.Profile {
	p := team.DefaultProfile("payments")
	return &p
}

func TestExecute_SuccessfulSwitch(t *testing.T) {
	traffic := &fakeTraffic{}
	h := newHarness(t, traffic, fakeBackup{}, fakeSyncer{})

	res, err := h.orch.Execute(context.Background(), testProfile(), fleet.Green, "operator request", false)
	require.NoError(t, err)

	assert.Equal(t, store.SwitchSuccess, res.Outcome)
	assert.Equal(t, fleet.Blue, res.From)
	assert.Equal(t, fleet.Green, res.To)
	assert.False(t, res.NoOp)

	// Target enabled before source disabled, never zero healthy backends.
	assert.Equal(t, []fleet.Color{fleet.Green}, traffic.enabled)
	assert.Equal(t, []fleet.Color{fleet.Blue}, traffic.disabled)
	assert.Equal(t, fleet.Green, h.topology.active["payments"])

	state := h.state(t)
	require.Len(t, state.Switches, 1)
	assert.Equal(t, store.SwitchSuccess, state.Switches[0].Result)
	assert.Equal(t, "operator request", state.Switches[0].Reason)
	assert.Equal(t, 1, state.RateLimits.AttemptedInHour(time.Now()))
	assert.Empty(t, state.Locks, "lock must be released after the attempt")
}

func TestExecute_EmptyTargetMeansStandby(t *testing.T) {
	h := newHarness(t, &fakeTraffic{}, fakeBackup{}, fakeSyncer{})

	res, err := h.orch.Execute(context.Background(), testProfile(), "", "failover", false)
	require.NoError(t, err)

	assert.Equal(t, fleet.Green, res.To)
	assert.Equal(t, store.SwitchSuccess, res.Outcome)
}

func TestExecute_SameTargetIsNoOp(t *testing.T) {
	h := newHarness(t, &fakeTraffic{}, fakeBackup{}, fakeSyncer{})

	res, err := h.orch.Execute(context.Background(), testProfile(), fleet.Blue, "noop", false)
	require.NoError(t, err)

	assert.True(t, res.NoOp)
	assert.Equal(t, store.SwitchSuccess, res.Outcome)

	// Detected no-ops leave no trace: no record, no breaker movement.
	_, err = h.store.Get(context.Background(), "payments")
	assert.ErrorIs(t, err, store.ErrTeamNotFound)
}

func TestExecute_BlueGreenDisabled(t *testing.T) {
	h := newHarness(t, &fakeTraffic{}, fakeBackup{}, fakeSyncer{})
	p := testProfile()
	p.BlueGreenEnabled = false

	_, err := h.orch.Execute(context.Background(), p, fleet.Green, "x", false)
	assert.Error(t, err)
}

func TestExecute_UnhealthyProxyFailsPreValidation(t *testing.T) {
	h := newHarness(t, &fakeTraffic{unhealthy: true}, fakeBackup{}, fakeSyncer{})

	res, err := h.orch.Execute(context.Background(), testProfile(), fleet.Green, "x", false)
	require.NoError(t, err)

	assert.Equal(t, store.SwitchFailed, res.Outcome)
	assert.Equal(t, switching.StagePreValidation, res.Stage)
	assert.Equal(t, fleet.Blue, h.topology.active["payments"], "topology untouched before cutover")

	state := h.state(t)
	require.Len(t, state.Switches, 1)
	assert.Equal(t, store.SwitchFailed, state.Switches[0].Result)
	assert.Equal(t, 1, state.Breaker(fleet.OpSwitch).ConsecutiveFailures)
}

func TestExecute_BackupFailureAborts(t *testing.T) {
	h := newHarness(t, &fakeTraffic{}, fakeBackup{err: errors.New("disk full")}, fakeSyncer{})

	res, err := h.orch.Execute(context.Background(), testProfile(), fleet.Green, "x", false)
	require.NoError(t, err)

	assert.Equal(t, store.SwitchFailed, res.Outcome)
	assert.Equal(t, switching.StageBackup, res.Stage)
	assert.Equal(t, fleet.Blue, h.topology.active["payments"])
}

func TestExecute_CutoverFailureRollsBack(t *testing.T) {
	traffic := &fakeTraffic{enableErrFor: map[fleet.Color]error{fleet.Green: errors.New("proxy rejected enable")}}
	h := newHarness(t, traffic, fakeBackup{}, fakeSyncer{})

	res, err := h.orch.Execute(context.Background(), testProfile(), fleet.Green, "x", false)
	require.NoError(t, err)

	assert.Equal(t, store.SwitchRolledBack, res.Outcome)
	assert.Equal(t, switching.StageCutover, res.Stage)
	assert.False(t, res.RequiresManualIntervention)
	assert.Equal(t, fleet.Blue, h.topology.active["payments"])
}

func TestExecute_RollbackFailureRequiresManualIntervention(t *testing.T) {
	traffic := &fakeTraffic{enableErrFor: map[fleet.Color]error{
		fleet.Green: errors.New("proxy rejected enable"),
		fleet.Blue:  errors.New("proxy rejected enable"),
	}}
	h := newHarness(t, traffic, fakeBackup{}, fakeSyncer{})

	res, err := h.orch.Execute(context.Background(), testProfile(), fleet.Green, "x", false)
	require.NoError(t, err)

	assert.Equal(t, store.SwitchFailed, res.Outcome)
	assert.Equal(t, switching.StageRollback, res.Stage)
	assert.True(t, res.RequiresManualIntervention)

	state := h.state(t)
	require.Len(t, state.Switches, 1)
	assert.Equal(t, store.SwitchFailed, state.Switches[0].Result)
}

func TestExecute_PostValidationFailureRollsBack(t *testing.T) {
	traffic := &fakeTraffic{probeErrAfterEnable: fleet.Green}
	h := newHarness(t, traffic, fakeBackup{}, fakeSyncer{})

	res, err := h.orch.Execute(context.Background(), testProfile(), fleet.Green, "x", false)
	require.NoError(t, err)

	assert.Equal(t, store.SwitchRolledBack, res.Outcome)
	assert.Equal(t, switching.StagePostValidation, res.Stage)
	assert.False(t, res.RequiresManualIntervention)
	assert.Equal(t, fleet.Blue, h.topology.active["payments"], "topology restored to the original color")

	state := h.state(t)
	require.Len(t, state.Switches, 1)
	assert.Equal(t, store.SwitchRolledBack, state.Switches[0].Result)
	assert.Equal(t, 1, state.Breaker(fleet.OpSwitch).ConsecutiveFailures)
}

func TestExecute_LockTimeoutLeavesNoTrace(t *testing.T) {
	h := newHarness(t, &fakeTraffic{}, fakeBackup{}, fakeSyncer{})
	ctx := context.Background()

	lease, err := h.locks.Acquire(ctx, "payments", fleet.OpSwitch, time.Second)
	require.NoError(t, err)
	defer lease.Release(ctx)

	res, err := h.orch.Execute(ctx, testProfile(), fleet.Green, "x", false)
	require.NoError(t, err)

	assert.Equal(t, store.SwitchFailed, res.Outcome)
	assert.Equal(t, switching.StageLock, res.Stage)

	state := h.state(t)
	assert.Empty(t, state.Switches, "contention is not a switch attempt")
	assert.Zero(t, state.Breaker(fleet.OpSwitch).ConsecutiveFailures)
}

func TestExecute_NotifiesOnCompletion(t *testing.T) {
	h := newHarness(t, &fakeTraffic{}, fakeBackup{}, fakeSyncer{})

	_, err := h.orch.Execute(context.Background(), testProfile(), fleet.Green, "x", false)
	require.NoError(t, err)

	require.Len(t, h.notifier.events, 1)
	e := h.notifier.events[0]
	assert.Equal(t, "payments", e.Team)
	assert.Equal(t, "switch", e.Action)
	assert.Equal(t, string(store.SwitchSuccess), e.Result)
	assert.Equal(t, notify.SeverityInfo, e.Severity)
}

func TestExecute_MissingBackupAndSyncCollaborators(t *testing.T) {
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	topo := &fakeTopology{active: map[string]fleet.Color{"payments": fleet.Blue}}
	orch := switching.New(switching.Deps{
		Store:    st,
		Locks:    store.NewLockManager(st),
		Breaker:  breaker.New(st, breaker.Config{}, zerolog.Nop()),
		Topology: topo,
		Traffic:  &fakeTraffic{},
		Logger:   zerolog.Nop(),
	}, switching.Config{
		LockWait:      time.Second,
		Sleep:         func(context.Context, time.Duration) error { return nil },
		ProbeInterval: time.Millisecond,
	})

	// No backup runner, no data syncer, no notifier configured: the switch
	// still runs end to end instead of crashing mid-pipeline.
	res, err := orch.Execute(context.Background(), testProfile(), fleet.Green, "drill", false)
	require.NoError(t, err)
	assert.Equal(t, store.SwitchSuccess, res.Outcome)
	assert.Equal(t, fleet.Green, topo.active["payments"])
}
