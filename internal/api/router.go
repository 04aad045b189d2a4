// Package api provides the HTTP API for the failover control plane.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/switchpilot/switchpilot/internal/api/handler"
	"github.com/switchpilot/switchpilot/internal/api/middleware"
	"github.com/switchpilot/switchpilot/internal/auth"
	"github.com/switchpilot/switchpilot/internal/controller"
	"github.com/switchpilot/switchpilot/internal/opsflags"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	AuthService *auth.Service
	RequireAuth bool
	Controller  *controller.Controller
	Flags       *opsflags.Service
	// ReadinessChecks probe the store, topology, and signal sources.
	ReadinessChecks map[string]handler.ReadinessCheck
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "switchpilot-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.CaptureIdentity)      // Operator identity slot for logging/tracing
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.ReadinessChecks)
	teamHandler := handler.NewTeamHandler(cfg.Controller)
	flagsHandler := handler.NewFlagsHandler(cfg.Flags)

	authMiddleware := middleware.Auth(cfg.AuthService, cfg.RequireAuth)
	viewerOnly := middleware.RequireRole(auth.RoleViewer, cfg.RequireAuth)
	operatorOnly := middleware.RequireRole(auth.RoleOperator, cfg.RequireAuth)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)       // 100 req/min
	mutatingRateLimit := middleware.RateLimitByOperator(middleware.MutatingRateLimit) // 10 req/min

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		// Read endpoints
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(viewerOnly)
			r.Use(standardRateLimit)
			r.Get("/teams", teamHandler.ListTeams)
			r.Get("/teams/{team}/status", teamHandler.GetStatus)
			r.Get("/assess", teamHandler.AssessAll)
		})

		// Mutating endpoints - operator role, throttled per operator
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(operatorOnly)
			r.Use(mutatingRateLimit)
			r.Post("/teams/{team}/assess", teamHandler.Assess)
			r.Post("/teams/{team}/decide", teamHandler.Decide)
			r.Post("/teams/{team}/switch", teamHandler.Switch)
			r.Put("/teams/{team}/automation", teamHandler.SetAutomation)
			r.Put("/teams/{team}/maintenance", teamHandler.SetMaintenance)
			r.Post("/teams/{team}/breaker/reset", teamHandler.ResetBreaker)

			// Fleet-wide operational flags
			r.Route("/admin/flags", func(r chi.Router) {
				r.Get("/", flagsHandler.ListFlags)
				r.Put("/{flag}", flagsHandler.SetFlag)
			})
		})
	})

	return r
}
