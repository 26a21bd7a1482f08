// Package windy is the primary weather provider, backed by the Windy
// point-forecast API. It returns continuous numeric time series.
package windy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/weatherdiffusers/weatherdiffusers/internal/provider/resilience"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "windy"

	// DefaultEndpoint is the point-forecast API endpoint.
	DefaultEndpoint = "https://api.windy.com/api/point-forecast/v2"

	// DefaultModel is the forecast model requested.
	DefaultModel = "gfs"

	// DefaultTimeout bounds each call.
	DefaultTimeout = 30 * time.Second
)

// DefaultParameters are the series requested from the API.
var DefaultParameters = []string{"precip", "prate"}

// ClientConfig holds configuration for the Windy client.
type ClientConfig struct {
	// APIKey is the Windy point-forecast API key (required).
	APIKey string

	// Endpoint overrides the API endpoint (optional).
	Endpoint string

	// Model overrides the forecast model (default: gfs).
	Model string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Windy point-forecast client.
type Client struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new Windy client.
func NewClient(cfg ClientConfig) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		hc := resilience.DefaultClientConfig(ProviderName)
		hc.Timeout = DefaultTimeout
		httpClient = resilience.NewClient(hc)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		model:      model,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

type pointRequest struct {
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	Model      string   `json:"model"`
	Parameters []string `json:"parameters"`
	Key        string   `json:"key"`
}

// Fetch requests the point forecast and returns it as a continuous snapshot.
func (c *Client) Fetch(ctx context.Context, coord weather.Coordinate) (weather.Snapshot, error) {
	body, err := json.Marshal(pointRequest{
		Lat:        coord.Lat,
		Lon:        coord.Lon,
		Model:      c.model,
		Parameters: DefaultParameters,
		Key:        c.apiKey,
	})
	if err != nil {
		return weather.Snapshot{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return weather.Snapshot{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return weather.Snapshot{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return weather.Snapshot{}, fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	series, err := ParseSeries(resp.Body)
	if err != nil {
		return weather.Snapshot{}, err
	}

	c.logger.Debug().
		Int("series", len(series)).
		Float64("lat", coord.Lat).
		Float64("lon", coord.Lon).
		Msg("windy forecast fetched")

	return weather.Continuous(series), nil
}

// ParseSeries decodes a point-forecast response object. Every array-valued
// key becomes a series. A level-suffixed key such as "precip-surface" is
// also exposed under its base name when the base name is absent.
func ParseSeries(r io.Reader) (weather.TimeSeries, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	series := make(weather.TimeSeries, len(raw))
	for key, msg := range raw {
		var samples []weather.Sample
		if err := json.Unmarshal(msg, &samples); err != nil || samples == nil {
			continue
		}
		series[key] = samples
	}

	keys := make([]string, 0, len(series))
	for key := range series {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		base, _, found := strings.Cut(key, "-")
		if !found || base == "" {
			continue
		}
		if _, exists := series[base]; !exists {
			series[base] = series[key]
		}
	}

	return series, nil
}
