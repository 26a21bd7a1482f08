// Package alert orchestrates one alert request: geocode the city, query the
// weather providers in order, detect imminent precipitation and render the
// notice image.
package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/weatherdiffusers/weatherdiffusers/internal/detect"
	"github.com/weatherdiffusers/weatherdiffusers/internal/geocode"
	"github.com/weatherdiffusers/weatherdiffusers/internal/prompt"
	"github.com/weatherdiffusers/weatherdiffusers/internal/provider/resilience"
	"github.com/weatherdiffusers/weatherdiffusers/internal/render"
	"github.com/weatherdiffusers/weatherdiffusers/internal/telemetry"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
)

const tracerName = "github.com/weatherdiffusers/weatherdiffusers/internal/alert"

var (
	// ErrEmptyCity is returned when the request names no city.
	ErrEmptyCity = errors.New("city is required")

	// ErrInvalidWindow is returned for a non-positive step or a negative window.
	ErrInvalidWindow = errors.New("invalid detection window")
)

// ImageMode controls when a notice image is rendered.
type ImageMode int

const (
	// ImageAlways renders for every resolved city.
	ImageAlways ImageMode = iota
	// ImageForced renders even without a signal; reported as a forced image.
	ImageForced
	// ImageOnSignal renders only when precipitation is detected.
	ImageOnSignal
)

// Renderer writes a notice image and returns its path.
type Renderer interface {
	Render(n render.Notice) (string, error)
}

// Request is one alert request.
type Request struct {
	City   string
	Window detect.Window
	Image  ImageMode
}

// Result is the outcome of an alert request.
type Result struct {
	Place     weather.Place
	Detection weather.Detection
	Detected  bool
	// Source is the provider that produced the detection, empty without one.
	Source    string
	Prompt    string
	ImagePath string
	Message   string
}

// ServiceConfig holds dependencies for the alert service.
type ServiceConfig struct {
	Geocoder  geocode.Geocoder
	Providers []weather.Provider
	Renderer  Renderer
	Registry  *resilience.Registry
	Metrics   *telemetry.AlertMetrics
	Logger    zerolog.Logger
}

// Service generates alerts.
type Service struct {
	geocoder  geocode.Geocoder
	providers []weather.Provider
	renderer  Renderer
	registry  *resilience.Registry
	metrics   *telemetry.AlertMetrics
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewService creates a new alert service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		geocoder:  cfg.Geocoder,
		providers: cfg.Providers,
		renderer:  cfg.Renderer,
		registry:  cfg.Registry,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		tracer:    telemetry.Tracer(tracerName),
	}
}

// ProviderNames lists the configured providers in query order.
func (s *Service) ProviderNames() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return names
}

// Generate runs one alert request end to end.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	city := strings.TrimSpace(req.City)
	if city == "" {
		return nil, ErrEmptyCity
	}

	window := req.Window
	if window == (detect.Window{}) {
		window = detect.DefaultWindow()
	}
	if !window.Valid() {
		return nil, fmt.Errorf("%w: step %d minutes, window %d minutes", ErrInvalidWindow, window.StepMinutes, window.WindowMinutes)
	}

	ctx, span := s.tracer.Start(ctx, "alert.Generate", trace.WithAttributes(
		attribute.String("alert.city", city),
		attribute.Int("alert.window_minutes", window.WindowMinutes),
		attribute.Int("alert.step_minutes", window.StepMinutes),
	))
	defer span.End()

	place, err := s.geocoder.Geocode(ctx, city)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "geocoding failed")
		s.logger.Warn().Err(err).Str("city", city).Msg("could not geocode city")
		if errors.Is(err, weather.ErrCityNotFound) || ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s", weather.ErrCityNotFound, city)
		}
		return nil, err
	}
	if place.Name == "" {
		place.Name = city
	}

	result := &Result{
		Place:     place,
		Detection: weather.Detection{Condition: weather.ConditionNone},
	}

	for _, p := range s.providers {
		d, ok := s.query(ctx, p, place.Coordinate, window)
		if ok {
			result.Detection = d
			result.Detected = true
			result.Source = p.Name()
			break
		}
	}

	s.metrics.RecordDetection(ctx, result.Source, result.Detected)
	span.SetAttributes(
		attribute.Bool("alert.detected", result.Detected),
		attribute.String("alert.source", result.Source),
	)

	result.Message = Message(place.Name, result.Detection, result.Detected)

	if !result.Detected && req.Image == ImageOnSignal {
		s.logger.Info().Str("city", place.Name).Msg("no precipitation signal")
		return result, nil
	}

	result.Prompt = prompt.Build(place.Name, result.Detection.Condition, result.Detection.ETAMinutes)

	path, err := s.renderer.Render(render.Notice{
		City:       place.Name,
		Condition:  result.Detection.Condition,
		ETAMinutes: result.Detection.ETAMinutes,
		Prompt:     result.Prompt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return nil, fmt.Errorf("rendering notice: %w", err)
	}
	result.ImagePath = path
	s.metrics.RecordRender(ctx, string(result.Detection.Condition))

	s.logger.Info().
		Str("city", place.Name).
		Bool("detected", result.Detected).
		Str("source", result.Source).
		Float64("eta_minutes", result.Detection.ETAMinutes).
		Str("image", path).
		Msg("alert generated")

	return result, nil
}

// query fetches one provider and evaluates its snapshot. Provider errors are
// logged and count as no signal.
func (s *Service) query(ctx context.Context, p weather.Provider, coord weather.Coordinate, w detect.Window) (weather.Detection, bool) {
	name := p.Name()
	ctx, span := s.tracer.Start(ctx, "provider."+name, trace.WithAttributes(
		attribute.String("provider.name", name),
	))
	defer span.End()

	start := time.Now()
	snap, err := p.Fetch(ctx, coord)
	s.metrics.RecordProvider(ctx, name, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		if s.registry != nil {
			s.registry.RecordFailure(name, err)
		}
		s.logger.Warn().Err(err).Str("provider", name).Msg("provider fetch failed")
		return weather.Detection{}, false
	}
	if s.registry != nil {
		s.registry.RecordSuccess(name)
	}

	d, ok := detect.Evaluate(snap, w)
	span.SetAttributes(attribute.Bool("provider.detected", ok))
	s.logger.Debug().
		Str("provider", name).
		Str("kind", snap.Kind.String()).
		Bool("detected", ok).
		Float64("eta_minutes", d.ETAMinutes).
		Msg("provider evaluated")
	return d, ok
}

// Message is the one-line text shown to the user.
func Message(city string, d weather.Detection, detected bool) string {
	if detected {
		return fmt.Sprintf("%s: %s expected in ~%d minutes.", city, d.Condition, int(d.ETAMinutes))
	}
	return fmt.Sprintf("No imminent precipitation detected for %s soon.", city)
}
