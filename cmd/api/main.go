// Package main provides the entrypoint for the switchpilot API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/switchpilot/switchpilot/internal/api"
	"github.com/switchpilot/switchpilot/internal/api/handler"
	"github.com/switchpilot/switchpilot/internal/api/middleware"
	"github.com/switchpilot/switchpilot/internal/app"
	"github.com/switchpilot/switchpilot/internal/auth"
	"github.com/switchpilot/switchpilot/internal/config"
	"github.com/switchpilot/switchpilot/internal/platform"
	"github.com/switchpilot/switchpilot/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "switchpilot-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting switchpilot API")

	ctrlCfg := config.ControllerFromEnv()
	apiCfg := config.APIFromEnv()

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	// Initialize HTTP metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Assemble the control plane
	plane, err := app.Build(ctx, ctrlCfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build control plane")
	}
	defer func() {
		if closeErr := plane.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close control plane")
		}
	}()
	log.Info().Int("teams", len(plane.Profiles)).Msg("control plane assembled")

	// Initialize auth service
	signingKey := apiCfg.JWTSigningKey
	if signingKey == "" {
		signingKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	authService, err := auth.NewService(auth.Config{SigningKey: signingKey})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize auth service")
	}

	// Readiness probes the state store and topology file
	readiness := map[string]handler.ReadinessCheck{
		"state-store": func(ctx context.Context) error {
			_, err := plane.Store.Teams(ctx)
			return err
		},
		"topology": func(ctx context.Context) error {
			// A team missing from the topology file is a config mismatch,
			// not an unreadable file.
			for name := range plane.Profiles {
				_, err := plane.Topology.ActiveColor(ctx, name)
				if err != nil && !errors.Is(err, platform.ErrTeamNotInTopology) {
					return err
				}
				break
			}
			return nil
		},
	}

	router := api.NewRouter(api.RouterConfig{
		Version:         Version,
		BuildTime:       BuildTime,
		Logger:          log,
		ServiceName:     serviceName,
		Metrics:         metrics,
		AuthService:     authService,
		RequireAuth:     apiCfg.RequireAuth,
		Controller:      plane.Controller,
		Flags:           plane.Flags,
		ReadinessChecks: readiness,
	})

	server := &http.Server{
		Addr:         apiCfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if srvErr := server.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			log.Fatal().Err(srvErr).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
