// Package main provides the entrypoint for the weather alert API server.
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

	"github.com/weatherdiffusers/weatherdiffusers/internal/api"
	"github.com/weatherdiffusers/weatherdiffusers/internal/api/middleware"
	"github.com/weatherdiffusers/weatherdiffusers/internal/app"
	"github.com/weatherdiffusers/weatherdiffusers/internal/config"
	"github.com/weatherdiffusers/weatherdiffusers/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = api.DefaultServiceName

	cfg, err := config.Load()
	if err != nil {
		bootLog := telemetry.NewLogger(os.Stdout, serviceName, Version, zerolog.InfoLevel)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := telemetry.NewLogger(os.Stdout, serviceName, Version, cfg.Level())
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting weather alert API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
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

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	a, err := app.New(cfg, app.Endpoints{}, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build alert service")
		os.Exit(1)
	}
	log.Info().
		Strs("providers", a.Service.ProviderNames()).
		Str("font", a.Renderer.FontSource()).
		Msg("alert service initialized")

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Generator:   a.Service,
		Registry:    a.Registry,
		Window:      a.Window,
		ImageDir:    cfg.OutputDir,
		RequireTLS:  cfg.RequireTLS,
	})

	// Alert generation waits on the geocoder, two forecast providers and the
	// renderer, so the write timeout exceeds their combined client timeouts.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

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
