// Package app wires configuration into a ready alert service.
package app

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/weatherdiffusers/weatherdiffusers/internal/alert"
	"github.com/weatherdiffusers/weatherdiffusers/internal/config"
	"github.com/weatherdiffusers/weatherdiffusers/internal/detect"
	"github.com/weatherdiffusers/weatherdiffusers/internal/geocode"
	"github.com/weatherdiffusers/weatherdiffusers/internal/geocode/nominatim"
	"github.com/weatherdiffusers/weatherdiffusers/internal/provider/resilience"
	"github.com/weatherdiffusers/weatherdiffusers/internal/render"
	"github.com/weatherdiffusers/weatherdiffusers/internal/telemetry"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather/openweathermap"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather/windy"
)

// Endpoints overrides upstream base URLs. Empty fields use the defaults.
type Endpoints struct {
	Nominatim         string
	Windy             string
	OpenWeatherMap    string
	OpenWeatherMapGeo string
}

// App holds the assembled components shared by every front end.
type App struct {
	Config   config.Config
	Service  *alert.Service
	Registry *resilience.Registry
	Renderer *render.Renderer
	Window   detect.Window
}

// New builds the alert service and its collaborators from cfg.
// Providers are ordered primary first and included only when their key is set.
func New(cfg config.Config, endpoints Endpoints, logger zerolog.Logger) (*App, error) {
	registry := resilience.NewRegistry()

	metrics, err := telemetry.NewAlertMetrics()
	if err != nil {
		return nil, fmt.Errorf("initializing alert metrics: %w", err)
	}

	// upstream builds the resilient transport for one named upstream.
	upstream := func(name string, timeout time.Duration) *resilience.Client {
		hc := resilience.DefaultClientConfig(name)
		hc.Timeout = timeout
		hc.MaxRetries = uint64(cfg.ProviderMaxRetries)
		hc.Registry = registry
		return resilience.NewClient(hc)
	}

	geocoders := []geocode.Geocoder{
		nominatim.NewClient(nominatim.ClientConfig{
			BaseURL:    endpoints.Nominatim,
			UserAgent:  cfg.NominatimUserAgent,
			HTTPClient: upstream(nominatim.ProviderName, nominatim.DefaultTimeout),
			Logger:     logger.With().Str("component", nominatim.ProviderName).Logger(),
		}),
	}

	var providers []weather.Provider

	if cfg.HasWindy() {
		providers = append(providers, windy.NewClient(windy.ClientConfig{
			APIKey:     cfg.WindyAPIKey,
			Endpoint:   endpoints.Windy,
			HTTPClient: upstream(windy.ProviderName, windy.DefaultTimeout),
			Logger:     logger.With().Str("component", windy.ProviderName).Logger(),
		}))
	} else {
		logger.Warn().Msg("WINDY_API_KEY not set, primary provider disabled")
	}

	if cfg.HasOpenWeather() {
		owm := openweathermap.NewClient(openweathermap.ClientConfig{
			APIKey:     cfg.OpenWeatherAPIKey,
			Units:      cfg.Units,
			BaseURL:    endpoints.OpenWeatherMap,
			GeoURL:     endpoints.OpenWeatherMapGeo,
			HTTPClient: upstream(openweathermap.ProviderName, openweathermap.DefaultTimeout),
			Logger:     logger.With().Str("component", openweathermap.ProviderName).Logger(),
		})
		providers = append(providers, owm)
		geocoders = append(geocoders, owm)
	} else {
		logger.Warn().Msg("OPENWEATHER_API_KEY not set, secondary provider disabled")
	}

	renderer := render.New(render.Config{
		OutputDir: cfg.OutputDir,
		FontPath:  cfg.FontPath,
		Logger:    logger.With().Str("component", "render").Logger(),
	})

	service := alert.NewService(alert.ServiceConfig{
		Geocoder:  geocode.NewChain(logger, geocoders...),
		Providers: providers,
		Renderer:  renderer,
		Registry:  registry,
		Metrics:   metrics,
		Logger:    logger.With().Str("component", "alert").Logger(),
	})

	return &App{
		Config:   cfg,
		Service:  service,
		Registry: registry,
		Renderer: renderer,
		Window: detect.Window{
			StepMinutes:   cfg.SeriesStepMinutes,
			WindowMinutes: cfg.DetectionWindowMinutes,
		},
	}, nil
}
