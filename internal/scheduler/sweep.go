// Package scheduler drives the controller: a cron-scheduled sweep over
// every configured team, plus an on-demand Pub/Sub trigger.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/switchpilot/switchpilot/internal/controller"
	"github.com/switchpilot/switchpilot/internal/metrics"
)

// SweepResult summarizes one full pass over the fleet.
type SweepResult struct {
	Teams    int
	Assessed int
	Switched int
	Failed   int
	Duration time.Duration
}

// Sweeper runs the assessment pipeline for every team on a schedule.
// Each team is its own unit of work: teams are swept concurrently so one
// team's slow signal source cannot stall the rest of the fleet, while the
// pipeline inside a team stays strictly sequential. Two sweep passes never
// overlap.
type Sweeper struct {
	ctrl     *controller.Controller
	schedule string
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// SweeperConfig holds configuration for creating a Sweeper.
type SweeperConfig struct {
	Controller *controller.Controller
	Schedule   string // cron spec, e.g. "@every 2m"
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// NewSweeper creates a sweep scheduler.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	return &Sweeper{
		ctrl:     cfg.Controller,
		schedule: cfg.Schedule,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		cron:     cron.New(),
	}
}

// Start registers the cron entry and starts the scheduler. It returns
// immediately; sweeps run on the cron goroutine.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", s.schedule).Msg("sweep scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one pass over every team. If a pass is already in flight
// the call is skipped.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("sweep already in flight, skipping")
		return SweepResult{}
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	teams := s.ctrl.Teams()
	result := SweepResult{Teams: len(teams)}

	var wg sync.WaitGroup
	var resultMu sync.Mutex
	for _, teamName := range teams {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runTeam(ctx, teamName, &result, &resultMu)
		}()
	}
	wg.Wait()

	result.Duration = time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveSweep(result.Duration, result.Failed == 0)
	}
	s.logger.Info().
		Int("teams", result.Teams).
		Int("assessed", result.Assessed).
		Int("switched", result.Switched).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("sweep completed")
	return result
}

func (s *Sweeper) runTeam(ctx context.Context, teamName string, result *SweepResult, resultMu *sync.Mutex) {
	logger := s.logger.With().Str("team", teamName).Logger()

	decision, switchResult, err := s.ctrl.RunTeamCycle(ctx, teamName)
	if err != nil {
		resultMu.Lock()
		result.Failed++
		resultMu.Unlock()
		logger.Error().Err(err).Msg("team cycle failed")
		return
	}
	resultMu.Lock()
	result.Assessed++
	resultMu.Unlock()

	if s.metrics != nil && decision.Assessment != nil {
		s.metrics.SetTeamScore(teamName, decision.Assessment.TotalScore)
		s.metrics.SetTeamStatus(teamName, string(decision.Assessment.Status))
	}

	if switchResult == nil {
		logger.Debug().
			Str("status", string(decision.Assessment.Status)).
			Float64("score", decision.Assessment.TotalScore).
			Str("gate_check", decision.Verdict.Check).
			Msg("no switch this cycle")
		return
	}

	resultMu.Lock()
	result.Switched++
	resultMu.Unlock()
	if s.metrics != nil {
		s.metrics.RecordSwitch(teamName, string(switchResult.Outcome), switchResult.Duration)
	}
	logger.Info().
		Str("from", string(switchResult.From)).
		Str("to", string(switchResult.To)).
		Str("outcome", string(switchResult.Outcome)).
		Dur("duration", switchResult.Duration).
		Msg("automated switch executed")
}
