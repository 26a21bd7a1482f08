// Package openweathermap is the secondary (categorical) weather provider and a
// direct geocoder backed by the OpenWeatherMap APIs.
package openweathermap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/weatherdiffusers/weatherdiffusers/internal/provider/resilience"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap data API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

	// DefaultGeoURL is the OpenWeatherMap geocoding API base URL.
	DefaultGeoURL = "https://api.openweathermap.org/geo/1.0"

	// DefaultTimeout bounds each call.
	DefaultTimeout = 30 * time.Second
)

// Unit systems accepted by the API.
const (
	UnitsMetric   = "metric"
	UnitsImperial = "imperial"
)

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// Units is "metric" or "imperial" (default: metric).
	Units string

	// BaseURL is the data API base URL (optional).
	BaseURL string

	// GeoURL is the geocoding API base URL (optional).
	GeoURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeatherMap API client.
type Client struct {
	apiKey     string
	units      string
	baseURL    string
	geoURL     string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	geoURL := cfg.GeoURL
	if geoURL == "" {
		geoURL = DefaultGeoURL
	}

	units := cfg.Units
	if units != UnitsImperial {
		units = UnitsMetric
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		hc := resilience.DefaultClientConfig(ProviderName)
		hc.Timeout = DefaultTimeout
		httpClient = resilience.NewClient(hc)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		units:      units,
		baseURL:    baseURL,
		geoURL:     geoURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Fetch returns current conditions and the 3-hour forecast as a categorical snapshot.
func (c *Client) Fetch(ctx context.Context, coord weather.Coordinate) (weather.Snapshot, error) {
	current, err := c.GetCurrentWeather(ctx, coord)
	if err != nil {
		return weather.Snapshot{}, fmt.Errorf("current weather: %w", err)
	}

	forecast, err := c.GetForecast(ctx, coord)
	if err != nil {
		return weather.Snapshot{}, fmt.Errorf("forecast: %w", err)
	}

	return weather.Categorical(current, forecast), nil
}

// GetCurrentWeather fetches current conditions for a location.
func (c *Client) GetCurrentWeather(ctx context.Context, coord weather.Coordinate) (*weather.CurrentConditions, error) {
	var resp currentWeatherResponse
	if err := c.get(ctx, c.baseURL+"/weather", c.pointQuery(coord), &resp); err != nil {
		return nil, err
	}

	return &weather.CurrentConditions{
		Conditions: toConditions(resp.Weather),
		ObservedAt: time.Unix(resp.Dt, 0),
	}, nil
}

// GetForecast fetches the 3-hour interval forecast list for a location.
func (c *Client) GetForecast(ctx context.Context, coord weather.Coordinate) ([]weather.ForecastBlock, error) {
	var resp forecastResponse
	if err := c.get(ctx, c.baseURL+"/forecast", c.pointQuery(coord), &resp); err != nil {
		return nil, err
	}

	blocks := make([]weather.ForecastBlock, 0, len(resp.List))
	for _, item := range resp.List {
		blocks = append(blocks, weather.ForecastBlock{
			Time:       time.Unix(item.Dt, 0),
			Conditions: toConditions(item.Weather),
		})
	}
	return blocks, nil
}

// Geocode resolves a city name with the direct geocoding API.
func (c *Client) Geocode(ctx context.Context, city string) (weather.Place, error) {
	q := url.Values{}
	q.Set("q", city)
	q.Set("limit", "1")
	q.Set("appid", c.apiKey)

	var results []geocodeResult
	if err := c.get(ctx, c.geoURL+"/direct", q, &results); err != nil {
		return weather.Place{}, err
	}
	if len(results) == 0 {
		return weather.Place{}, fmt.Errorf("%w: %s", weather.ErrCityNotFound, city)
	}

	first := results[0]
	name := first.Name
	if name == "" {
		name = city
	}
	return weather.Place{
		Coordinate: weather.Coordinate{Lat: first.Lat, Lon: first.Lon},
		Name:       name,
	}, nil
}

func (c *Client) pointQuery(coord weather.Coordinate) url.Values {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(coord.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(coord.Lon, 'f', 6, 64))
	q.Set("appid", c.apiKey)
	q.Set("units", c.units)
	return q
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func toConditions(items []conditionItem) []weather.ConditionCode {
	out := make([]weather.ConditionCode, 0, len(items))
	for _, w := range items {
		out = append(out, weather.ConditionCode{
			ID:          w.ID,
			Main:        w.Main,
			Description: w.Description,
		})
	}
	return out
}

// OpenWeatherMap API response structures.

type conditionItem struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
}

type currentWeatherResponse struct {
	Weather []conditionItem `json:"weather"`
	Dt      int64           `json:"dt"`
	Name    string          `json:"name"`
}

type forecastResponse struct {
	List []struct {
		Dt      int64           `json:"dt"`
		Weather []conditionItem `json:"weather"`
	} `json:"list"`
}

type geocodeResult struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
}
