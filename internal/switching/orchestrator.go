package switching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/switchpilot/switchpilot/internal/breaker"
	"github.com/switchpilot/switchpilot/internal/fleet"
	"github.com/switchpilot/switchpilot/internal/notify"
	"github.com/switchpilot/switchpilot/internal/platform"
	"github.com/switchpilot/switchpilot/internal/store"
	"github.com/switchpilot/switchpilot/internal/team"
)

// Config holds the orchestration timing constants.
type Config struct {
	// LockWait bounds lock acquisition. Default: 600s.
	LockWait time.Duration
	// Stabilization is the wait after cutover before post-validation.
	// Default: 300s.
	Stabilization time.Duration
	// RollbackStabilization is the shorter wait after a rollback.
	// Default: 60s.
	RollbackStabilization time.Duration
	// CutoverGrace separates enabling the target backend from disabling the
	// source backend, so there is never a window with zero healthy
	// backends. Default: 5s.
	CutoverGrace time.Duration
	// ProbeAttempts and ProbeInterval bound post-validation probing.
	// Defaults: 5 attempts, 10s apart.
	ProbeAttempts int
	ProbeInterval time.Duration

	// Sleep overrides the wait primitive, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Orchestrator sequences the multi-step, partially reversible switch.
type Orchestrator struct {
	store    store.Store
	locks    *store.LockManager
	breaker  *breaker.Breaker
	topology platform.TopologyStore
	traffic  platform.TrafficController
	backup   platform.BackupRunner
	syncer   platform.DataSyncer
	notifier notify.Notifier
	cfg      Config
	logger   zerolog.Logger
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Store    store.Store
	Locks    *store.LockManager
	Breaker  *breaker.Breaker
	Topology platform.TopologyStore
	Traffic  platform.TrafficController
	Backup   platform.BackupRunner
	Syncer   platform.DataSyncer
	Notifier notify.Notifier
	Logger   zerolog.Logger
}

// New creates an orchestrator, filling in default timing constants.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.LockWait == 0 {
		cfg.LockWait = 600 * time.Second
	}
	if cfg.Stabilization == 0 {
		cfg.Stabilization = 300 * time.Second
	}
	if cfg.RollbackStabilization == 0 {
		cfg.RollbackStabilization = 60 * time.Second
	}
	if cfg.CutoverGrace == 0 {
		cfg.CutoverGrace = 5 * time.Second
	}
	if cfg.ProbeAttempts == 0 {
		cfg.ProbeAttempts = 5
	}
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = 10 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = defaultSleep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	// Optional collaborators default to no-ops so a deployment without a
	// backup or sync command still switches safely.
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	backup := deps.Backup
	if backup == nil {
		backup = noBackup{}
	}
	syncer := deps.Syncer
	if syncer == nil {
		syncer = noSync{}
	}

	return &Orchestrator{
		store:    deps.Store,
		locks:    deps.Locks,
		breaker:  deps.Breaker,
		topology: deps.Topology,
		traffic:  deps.Traffic,
		backup:   backup,
		syncer:   syncer,
		notifier: notifier,
		cfg:      cfg,
		logger:   deps.Logger,
	}
}

// Execute runs a switch for the team. target may be empty, meaning the
// standby counterpart of the currently active color. Callers must already
// hold safety-gate approval (or have forced past it); the orchestrator still
// enforces its own non-bypassable lock.
//
// A request naming a target the team is already on is a detected no-op: no
// lock, no record, no breaker update.
func (o *Orchestrator) Execute(ctx context.Context, profile *team.Profile, target fleet.Color, reason string, force bool) (*Result, error) {
	start := o.cfg.Now()
	log := o.logger.With().Str("team", profile.Name).Logger()

	current, err := o.topology.ActiveColor(ctx, profile.Name)
	if err != nil {
		return nil, fmt.Errorf("resolve active color for team %s: %w", profile.Name, err)
	}

	if target == "" {
		target = current.Other()
	}
	if target == current {
		log.Info().Str("color", string(current)).Msg("team already on target color, nothing to do")
		return &Result{Team: profile.Name, From: current, To: target, Outcome: store.SwitchSuccess, NoOp: true}, nil
	}

	if !profile.BlueGreenEnabled {
		return nil, fmt.Errorf("team %s does not have blue/green switching enabled", profile.Name)
	}

	// Acquire the per-team switch lock. A timeout here is plain contention:
	// notify and bail without touching the breaker or the history.
	lease, err := o.locks.Acquire(ctx, profile.Name, fleet.OpSwitch, o.cfg.LockWait)
	if err != nil {
		if errors.Is(err, store.ErrLockTimeout) {
			log.Warn().Dur("waited", o.cfg.LockWait).Msg("switch lock acquisition timed out")
			o.notifier.Notify(ctx, notify.Event{
				Team: profile.Name, Action: "switch", Result: "lock_timeout",
				Detail:   "another switch is in flight",
				Severity: notify.SeverityWarning, At: o.cfg.Now(),
			})
			return &Result{
				Team: profile.Name, From: current, To: target,
				Outcome: store.SwitchFailed, Stage: StageLock, Reason: "lock_timeout",
				Duration: o.cfg.Now().Sub(start),
			}, nil
		}
		return nil, err
	}

	log.Info().Str("from", string(current)).Str("to", string(target)).
		Str("reason", reason).Bool("force", force).Msg("starting switch")

	result := o.run(ctx, profile, current, target, reason, log)
	result.Duration = o.cfg.Now().Sub(start)

	o.finish(ctx, lease, profile.Name, reason, result, log)
	return result, nil
}

// run executes the pipeline stages after the lock is held.
func (o *Orchestrator) run(ctx context.Context, profile *team.Profile, current, target fleet.Color, reason string, log zerolog.Logger) *Result {
	fail := func(stage Stage, reason string) *Result {
		return &Result{Team: profile.Name, From: current, To: target, Outcome: store.SwitchFailed, Stage: stage, Reason: reason}
	}

	// Pre-switch validation. The proxy is a hard dependency: if its control
	// endpoint is down we cannot cut over and we cannot roll back.
	if !o.traffic.Healthy(ctx) {
		return fail(StagePreValidation, "traffic-control endpoint is unhealthy")
	}
	if err := o.traffic.ProbeBackend(ctx, profile.Name, target); err != nil {
		return fail(StagePreValidation, fmt.Sprintf("target backend %s unreachable: %v", target, err))
	}

	if err := o.backup.Backup(ctx, profile.Name, current); err != nil {
		return fail(StageBackup, err.Error())
	}

	if err := o.syncer.Sync(ctx, profile.Name, current, target); err != nil {
		return fail(StageDataSync, err.Error())
	}

	// Cutover. From here on, failures trigger rollback.
	if err := o.cutover(ctx, profile.Name, current, target); err != nil {
		log.Error().Err(err).Msg("cutover failed, rolling back")
		return o.rollback(ctx, profile.Name, current, target, StageCutover, err.Error(), log)
	}

	log.Info().Dur("wait", o.cfg.Stabilization).Msg("cutover complete, stabilizing")
	if err := o.cfg.Sleep(ctx, o.cfg.Stabilization); err != nil {
		return o.rollback(ctx, profile.Name, current, target, StageStabilization, err.Error(), log)
	}

	if err := o.postValidate(ctx, profile.Name, target); err != nil {
		log.Error().Err(err).Msg("post-switch validation failed, rolling back")
		return o.rollback(ctx, profile.Name, current, target, StagePostValidation, err.Error(), log)
	}

	log.Info().Str("active", string(target)).Msg("switch completed and validated")
	return &Result{Team: profile.Name, From: current, To: target, Outcome: store.SwitchSuccess, Reason: reason}
}

// cutover points the topology record at the target, then flips the proxy:
// enable the target backend first, wait the grace delay, then disable the
// source backend.
func (o *Orchestrator) cutover(ctx context.Context, teamName string, current, target fleet.Color) error {
	if err := o.topology.SetActiveColor(ctx, teamName, target); err != nil {
		return fmt.Errorf("update topology: %w", err)
	}
	if err := o.traffic.EnableBackend(ctx, teamName, target); err != nil {
		return fmt.Errorf("enable %s backend: %w", target, err)
	}
	if err := o.cfg.Sleep(ctx, o.cfg.CutoverGrace); err != nil {
		return err
	}
	if err := o.traffic.DisableBackend(ctx, teamName, current); err != nil {
		return fmt.Errorf("disable %s backend: %w", current, err)
	}
	return nil
}

// postValidate probes the color through the traffic-control endpoint with
// bounded retries.
func (o *Orchestrator) postValidate(ctx context.Context, teamName string, color fleet.Color) error {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.ProbeAttempts; attempt++ {
		if lastErr = o.traffic.ProbeBackend(ctx, teamName, color); lastErr == nil {
			return nil
		}
		if attempt < o.cfg.ProbeAttempts {
			if err := o.cfg.Sleep(ctx, o.cfg.ProbeInterval); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("backend %s failed %d validation probes: %w", color, o.cfg.ProbeAttempts, lastErr)
}

// rollback re-points topology and traffic back at the original color and
// validates it. A rollback failure is terminal and flagged for manual
// intervention; it is never retried automatically.
func (o *Orchestrator) rollback(ctx context.Context, teamName string, original, attempted fleet.Color, failedStage Stage, cause string, log zerolog.Logger) *Result {
	result := &Result{
		Team: teamName, From: original, To: attempted,
		Stage: failedStage, Reason: cause,
	}

	rollbackErr := func() error {
		if err := o.topology.SetActiveColor(ctx, teamName, original); err != nil {
			return fmt.Errorf("restore topology: %w", err)
		}
		if err := o.traffic.EnableBackend(ctx, teamName, original); err != nil {
			return fmt.Errorf("re-enable %s backend: %w", original, err)
		}
		if err := o.cfg.Sleep(ctx, o.cfg.CutoverGrace); err != nil {
			return err
		}
		if err := o.traffic.DisableBackend(ctx, teamName, attempted); err != nil {
			return fmt.Errorf("disable %s backend: %w", attempted, err)
		}
		if err := o.cfg.Sleep(ctx, o.cfg.RollbackStabilization); err != nil {
			return err
		}
		return o.postValidate(ctx, teamName, original)
	}()

	if rollbackErr != nil {
		log.Error().Err(rollbackErr).Msg("rollback failed, manual intervention required")
		result.Outcome = store.SwitchFailed
		result.Stage = StageRollback
		result.Reason = fmt.Sprintf("%s; rollback failed: %v", cause, rollbackErr)
		result.RequiresManualIntervention = true
		return result
	}

	log.Warn().Str("restored", string(original)).Msg("switch rolled back")
	result.Outcome = store.SwitchRolledBack
	return result
}

// finish performs the terminal bookkeeping for every non-no-op attempt:
// release the lock, feed the breaker, bump rate counters, append the switch
// record, and notify.
func (o *Orchestrator) finish(ctx context.Context, lease *store.Lease, teamName, reason string, result *Result, log zerolog.Logger) {
	if err := lease.Release(ctx); err != nil {
		log.Error().Err(err).Msg("failed to release switch lock")
	}

	success := result.Outcome == store.SwitchSuccess
	if err := o.breaker.RecordOutcome(ctx, teamName, fleet.OpSwitch, success); err != nil {
		log.Error().Err(err).Msg("failed to record breaker outcome")
	}

	record := store.SwitchRecord{
		ID:        "sw_" + uuid.New().String()[:8],
		Team:      teamName,
		From:      result.From,
		To:        result.To,
		Reason:    reason,
		Result:    result.Outcome,
		Stage:     string(result.Stage),
		Duration:  result.Duration,
		Timestamp: o.cfg.Now().UTC(),
	}
	err := o.store.Update(ctx, teamName, func(s *store.TeamState) error {
		s.RateLimits.Record(record.Timestamp, success)
		s.AppendSwitch(record)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to persist switch record")
	}

	severity := notify.SeverityInfo
	detail := result.Reason
	switch {
	case result.RequiresManualIntervention:
		severity = notify.SeverityCritical
		detail = "ROLLBACK FAILED, manual intervention required: " + result.Reason
	case result.Outcome != store.SwitchSuccess:
		severity = notify.SeverityWarning
	}
	o.notifier.Notify(ctx, notify.Event{
		Team:     teamName,
		Action:   "switch",
		Result:   string(result.Outcome),
		Detail:   detail,
		Severity: severity,
		Duration: result.Duration,
		At:       o.cfg.Now(),
	})
}

type noBackup struct{}

func (noBackup) Backup(context.Context, string, fleet.Color) error { return nil }

type noSync struct{}

func (noSync) Sync(context.Context, string, fleet.Color, fleet.Color) error { return nil }

func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
