// Package main provides the entrypoint for the switchpilot controller
// daemon: the scheduled assessment sweep and switch executor.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/switchpilot/switchpilot/internal/app"
	"github.com/switchpilot/switchpilot/internal/config"
	"github.com/switchpilot/switchpilot/internal/metrics"
	"github.com/switchpilot/switchpilot/internal/scheduler"
	"github.com/switchpilot/switchpilot/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "switchpilot-controller"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting switchpilot controller")

	cfg := config.ControllerFromEnv()

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	// Assemble the control plane
	plane, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build control plane")
	}
	defer func() {
		if closeErr := plane.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close control plane")
		}
	}()
	log.Info().
		Int("teams", len(plane.Profiles)).
		Str("topology", cfg.TopologyPath).
		Str("state", cfg.StatePath).
		Msg("control plane assembled")

	// Prometheus metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Cron sweep
	sweeper := scheduler.NewSweeper(scheduler.SweeperConfig{
		Controller: plane.Controller,
		Schedule:   cfg.CycleSchedule,
		Metrics:    m,
		Logger:     log,
	})
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.CycleSchedule).Msg("failed to start sweep scheduler")
	}

	// Optional Pub/Sub trigger subscription
	if cfg.PubSubProjectID != "" && cfg.PubSubSubscription != "" {
		handler, err := scheduler.NewPubSubHandler(ctx, scheduler.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			Controller:       plane.Controller,
			Sweeper:          sweeper,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() {
			if closeErr := handler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub handler")
			}
		}()

		go func() {
			if recvErr := handler.Start(ctx); recvErr != nil && ctx.Err() == nil {
				log.Error().Err(recvErr).Msg("pubsub handler stopped")
			}
		}()
	}

	// Ops HTTP server: liveness and prometheus scrape endpoint
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","version":"` + Version + `"}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("ops server listening")
		if srvErr := server.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			log.Fatal().Err(srvErr).Msg("ops server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down controller")
	cancel()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server forced to shutdown")
	}

	log.Info().Msg("controller stopped")
}
