// Package app wires the control-plane component graph shared by the
// binaries: profiles, state store, signal clients, health engine, safety
// gate, orchestrator, and the controller on top.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/switchpilot/switchpilot/internal/breaker"
	"github.com/switchpilot/switchpilot/internal/config"
	"github.com/switchpilot/switchpilot/internal/controller"
	"github.com/switchpilot/switchpilot/internal/database"
	"github.com/switchpilot/switchpilot/internal/health"
	"github.com/switchpilot/switchpilot/internal/notify"
	"github.com/switchpilot/switchpilot/internal/opsflags"
	"github.com/switchpilot/switchpilot/internal/platform"
	"github.com/switchpilot/switchpilot/internal/safety"
	"github.com/switchpilot/switchpilot/internal/signal"
	"github.com/switchpilot/switchpilot/internal/store"
	"github.com/switchpilot/switchpilot/internal/switching"
	"github.com/switchpilot/switchpilot/internal/team"
	"github.com/switchpilot/switchpilot/internal/trend"
)

// App is the assembled control plane.
type App struct {
	Profiles   map[string]*team.Profile
	Store      store.Store
	Topology   *platform.FileTopology
	Traffic    *platform.ProxyController
	Flags      *opsflags.Service
	Notifier   notify.Notifier
	Controller *controller.Controller

	closers []func() error
}

// Build assembles the control plane from configuration. The caller owns
// the returned App and must Close it.
func Build(ctx context.Context, cfg config.Controller, logger zerolog.Logger) (*App, error) {
	profiles, err := config.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		return nil, err
	}

	a := &App{Profiles: profiles}

	var st store.Store
	switch cfg.StateBackend {
	case "", "file":
		st, err = store.NewFileStore(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("open state store: %w", err)
		}
	case "memory":
		st = store.NewMemoryStore()
	case "postgres":
		pool, perr := database.Connect(ctx, database.ConfigFromEnv())
		if perr != nil {
			return nil, fmt.Errorf("connect state database: %w", perr)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		st, err = store.NewPostgresStore(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("open state store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	a.Topology = platform.NewFileTopology(cfg.TopologyPath)
	a.Traffic = platform.NewProxyController(cfg.ProxyAdminURL, cfg.SignalTimeout)

	flagRepo := opsflags.NewInMemoryRepository()
	a.Flags = opsflags.NewService(flagRepo, logger)

	a.Notifier = buildNotifier(ctx, cfg, a.Flags, logger)

	sourceMetrics, err := signal.NewSourceMetrics()
	if err != nil {
		logger.Error().Err(err).Msg("signal source metrics unavailable")
		sourceMetrics = nil
	}

	collector := signal.NewCollector(signal.CollectorConfig{
		Metrics:     signal.NewMetricsClient(cfg.MetricsBaseURL, cfg.SignalTimeout),
		Logs:        signal.NewLogsClient(cfg.LogsBaseURL, cfg.SignalTimeout),
		Health:      signal.NewExecHealthChecker(),
		Logger:      logger,
		Instruments: sourceMetrics,
	})
	scorer := health.NewScorer(health.ScorerConfig{
		Collector: collector,
		Logger:    logger,
	})
	analyzer := trend.NewAnalyzer(trend.AnalyzerConfig{})

	brk := breaker.New(st, breaker.Config{}, logger)
	gate := safety.NewGate(st, brk, a.Flags, safety.Config{}, logger)

	var backupRunner platform.BackupRunner
	if len(cfg.BackupCommand) > 0 {
		backupRunner = platform.NewExecBackupRunner(cfg.BackupCommand, 0, logger)
	}
	var syncer platform.DataSyncer
	if len(cfg.SyncCommand) > 0 {
		syncer = platform.NewExecDataSyncer(cfg.SyncCommand, 0, logger)
	}

	orch := switching.New(switching.Deps{
		Store:    st,
		Locks:    store.NewLockManager(st),
		Breaker:  brk,
		Topology: a.Topology,
		Traffic:  a.Traffic,
		Backup:   backupRunner,
		Syncer:   syncer,
		Notifier: a.Notifier,
		Logger:   logger,
	}, switching.Config{})

	a.Controller = controller.New(controller.Deps{
		Profiles:     profiles,
		Scorer:       scorer,
		Analyzer:     analyzer,
		Breaker:      brk,
		Gate:         gate,
		Orchestrator: orch,
		Store:        st,
		Topology:     a.Topology,
		Flags:        a.Flags,
		Logger:       logger,
	})

	return a, nil
}

// buildNotifier assembles the notification fan-out from configuration.
func buildNotifier(ctx context.Context, cfg config.Controller, flags *opsflags.Service, logger zerolog.Logger) notify.Notifier {
	var sinks notify.Multi
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.WebhookURL, cfg.SignalTimeout, logger))
	}
	if cfg.PubSubProjectID != "" && cfg.PubSubTopic != "" {
		ps, err := notify.NewPubSub(ctx, notify.PubSubConfig{
			ProjectID: cfg.PubSubProjectID,
			Topic:     cfg.PubSubTopic,
			Logger:    logger,
		})
		if err != nil {
			logger.Error().Err(err).Msg("pubsub notifier unavailable, continuing without it")
		} else {
			sinks = append(sinks, ps)
		}
	}
	if len(sinks) == 0 {
		return notify.Nop{}
	}
	return notify.Gated{Inner: sinks, Flags: flags}
}

// Close releases everything Build opened.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c, ok := a.Notifier.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
