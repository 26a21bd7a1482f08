// Package nominatim geocodes city names with the OpenStreetMap Nominatim
// search API.
package nominatim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/weatherdiffusers/weatherdiffusers/internal/provider/resilience"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
)

const (
	// ProviderName identifies this geocoder.
	ProviderName = "nominatim"

	// DefaultBaseURL is the public Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultUserAgent identifies the application, as required by the
	// Nominatim usage policy.
	DefaultUserAgent = "WeatherDiffusers/1.0 (educational)"

	// DefaultTimeout bounds each lookup.
	DefaultTimeout = 20 * time.Second
)

// ClientConfig holds configuration for the Nominatim client.
type ClientConfig struct {
	// BaseURL overrides the Nominatim instance (optional).
	BaseURL string

	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds each lookup (default: 20s).
	Timeout time.Duration

	// HTTPClient is the resilient transport underneath resty (optional).
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Nominatim geocoder.
type Client struct {
	rest      *resty.Client
	userAgent string
	logger    zerolog.Logger
}

// NewClient creates a new Nominatim client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	transport := cfg.HTTPClient
	if transport == nil {
		hc := resilience.DefaultClientConfig(ProviderName)
		hc.Timeout = timeout
		transport = resilience.NewClient(hc)
	}

	rest := resty.New().
		SetTransport(transport).
		SetTimeout(timeout).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")

	return &Client{
		rest:      rest,
		userAgent: userAgent,
		logger:    cfg.Logger,
	}
}

type place struct {
	Lat         float64 `json:"lat,string"`
	Lon         float64 `json:"lon,string"`
	DisplayName string  `json:"display_name"`
}

// Geocode returns the first search hit for city, named by its display name.
// A hit without a display name keeps the caller's city name.
func (c *Client) Geocode(ctx context.Context, city string) (weather.Place, error) {
	var places []place

	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("User-Agent", c.userAgent).
		SetQueryParams(map[string]string{
			"q":               city,
			"format":          "json",
			"limit":           "1",
			"addressdetails":  "0",
			"accept-language": "en",
		}).
		ForceContentType("application/json").
		SetResult(&places).
		Get("/search")
	if err != nil {
		return weather.Place{}, fmt.Errorf("nominatim search: %w", err)
	}
	if resp.IsError() {
		return weather.Place{}, fmt.Errorf("nominatim search: unexpected status code: %d", resp.StatusCode())
	}

	if len(places) == 0 {
		return weather.Place{}, fmt.Errorf("%w: %s", weather.ErrCityNotFound, city)
	}

	hit := places[0]
	c.logger.Debug().
		Str("city", city).
		Str("match", hit.DisplayName).
		Float64("lat", hit.Lat).
		Float64("lon", hit.Lon).
		Msg("city geocoded")

	name := strings.TrimSpace(hit.DisplayName)
	if name == "" {
		name = city
	}

	return weather.Place{
		Coordinate: weather.Coordinate{Lat: hit.Lat, Lon: hit.Lon},
		Name:       name,
	}, nil
}
