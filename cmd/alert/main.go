// Package main provides the one-shot alert CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/weatherdiffusers/weatherdiffusers/internal/alert"
	"github.com/weatherdiffusers/weatherdiffusers/internal/app"
	"github.com/weatherdiffusers/weatherdiffusers/internal/config"
	"github.com/weatherdiffusers/weatherdiffusers/internal/detect"
	"github.com/weatherdiffusers/weatherdiffusers/internal/telemetry"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "weatherdiffusers-alert"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := telemetry.NewLogger(os.Stderr, serviceName, Version, cfg.Level())
	log.Debug().Str("build_time", BuildTime).Msg("starting alert CLI")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize telemetry")
		stop()
		os.Exit(1)
	}

	code := run(ctx, os.Args[1:], cfg, app.Endpoints{}, os.Stdout, log)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown telemetry")
	}
	cancel()
	stop()
	os.Exit(code)
}

// run parses flags, generates one alert and prints the outcome to stdout.
// It returns the process exit code.
func run(ctx context.Context, args []string, cfg config.Config, endpoints app.Endpoints, stdout io.Writer, log zerolog.Logger) int {
	fs := flag.NewFlagSet("alert", flag.ContinueOnError)
	fs.SetOutput(stdout)

	city := fs.String("city", cfg.DefaultCity, "city to check")
	windowMin := fs.Int("window-min", cfg.DetectionWindowMinutes, "furthest ETA in minutes that counts as imminent (0 means now only)")
	stepMin := fs.Int("step-min", cfg.SeriesStepMinutes, "minutes between forecast samples")
	forceImage := fs.Bool("force-image", false, "render an image even without a precipitation signal")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *stepMin <= 0 {
		fmt.Fprintf(stdout, "invalid -step-min %d: must be positive\n", *stepMin)
		return 2
	}
	if *windowMin < 0 {
		fmt.Fprintf(stdout, "invalid -window-min %d: must not be negative\n", *windowMin)
		return 2
	}

	a, err := app.New(cfg, endpoints, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build alert service")
		return 1
	}

	mode := alert.ImageOnSignal
	if *forceImage {
		mode = alert.ImageForced
	}

	res, err := a.Service.Generate(ctx, alert.Request{
		City:   *city,
		Window: detect.Window{StepMinutes: *stepMin, WindowMinutes: *windowMin},
		Image:  mode,
	})
	switch {
	case errors.Is(err, weather.ErrCityNotFound), errors.Is(err, alert.ErrEmptyCity):
		fmt.Fprintf(stdout, "Could not geocode city: %s\n", *city)
		return 1
	case err != nil:
		log.Error().Err(err).Str("city", *city).Msg("alert failed")
		return 1
	}

	fmt.Fprintln(stdout, res.Message)
	switch {
	case res.ImagePath == "":
	case res.Detected:
		fmt.Fprintf(stdout, "Alert image saved to: %s\n", res.ImagePath)
	default:
		fmt.Fprintf(stdout, "Forced image saved to: %s\n", res.ImagePath)
	}
	return 0
}
