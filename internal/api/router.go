// Package api provides the HTTP API for weather alerts.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/weatherdiffusers/weatherdiffusers/internal/api/handler"
	"github.com/weatherdiffusers/weatherdiffusers/internal/api/middleware"
	"github.com/weatherdiffusers/weatherdiffusers/internal/detect"
	"github.com/weatherdiffusers/weatherdiffusers/internal/provider/resilience"
)

// DefaultServiceName is used for tracing when RouterConfig.ServiceName is empty.
const DefaultServiceName = "weatherdiffusers-api"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Generator produces alerts. Required.
	Generator handler.AlertGenerator

	// Registry exposes upstream circuit state on the ops endpoints.
	Registry *resilience.Registry

	// Window is the default detection window for requests that omit one.
	Window detect.Window

	// ImageDir is the directory rendered images are served from.
	ImageDir string

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	window := cfg.Window
	if !window.Valid() {
		window = detect.DefaultWindow()
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry, window)
	alertHandler := handler.NewAlertHandler(cfg.Generator, window, cfg.ImageDir, cfg.Logger)

	alertRateLimit := middleware.RateLimitByIP(middleware.AlertRateLimit)       // 10 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/alerts", func(r chi.Router) {
			// Alert generation geocodes, calls forecast providers and renders
			// an image, so it gets the strict limit.
			r.With(alertRateLimit, middleware.RequireJSON, middleware.ContentTypeJSON).
				Post("/", alertHandler.CreateAlert)

			r.With(standardRateLimit).Get("/images/{name}", alertHandler.GetAlertImage)
		})
	})

	return r
}
