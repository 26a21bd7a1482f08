// Package main provides the entrypoint for the Telegram alert bot.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/weatherdiffusers/weatherdiffusers/internal/api/handler"
	"github.com/weatherdiffusers/weatherdiffusers/internal/api/middleware"
	"github.com/weatherdiffusers/weatherdiffusers/internal/app"
	"github.com/weatherdiffusers/weatherdiffusers/internal/bot"
	"github.com/weatherdiffusers/weatherdiffusers/internal/config"
	"github.com/weatherdiffusers/weatherdiffusers/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// updateTimeout is the long-poll timeout in seconds.
const updateTimeout = 60

func main() {
	const serviceName = "weatherdiffusers-bot"

	cfg, err := config.Load()
	if err != nil {
		bootLog := telemetry.NewLogger(os.Stdout, serviceName, Version, zerolog.InfoLevel)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := telemetry.NewLogger(os.Stdout, serviceName, Version, cfg.Level())
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting weather bot")

	if err := cfg.RequireBotToken(); err != nil {
		log.Fatal().Err(err).Msg("cannot start bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	a, err := app.New(cfg, app.Endpoints{}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build alert service") //nolint:gocritic // telemetry cleanup is best-effort
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Telegram")
	}
	log.Info().Str("bot", api.Self.UserName).Msg("authorized with Telegram")

	b := bot.New(bot.Config{
		Sender:      api,
		Generator:   a.Service,
		Window:      a.Window,
		Concurrency: cfg.BotConcurrency,
		Logger:      log.With().Str("component", "bot").Logger(),
	})

	// The health endpoint lets a container platform check on the long-polling process.
	ops := handler.NewOpsHandler(Version, BuildTime, a.Registry, a.Window)
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Get("/health", ops.HealthCheck)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = updateTimeout
		updates := api.GetUpdatesChan(u)

		err := b.Run(gctx, updates)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down bot")
		api.StopReceivingUpdates()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("bot stopped with error")
		return
	}
	log.Info().Msg("bot stopped")
}
