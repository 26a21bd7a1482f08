package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherdiffusers/weatherdiffusers/internal/alert"
	"github.com/weatherdiffusers/weatherdiffusers/internal/app"
	"github.com/weatherdiffusers/weatherdiffusers/internal/config"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
)

func upstream(t *testing.T, windyBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/nominatim/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("q") == "Atlantis" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"lat":"13.08","lon":"80.27","display_name":"Chennai"}]`))
	})
	mux.HandleFunc("/windy", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(windyBody))
	})
	mux.HandleFunc("/owm/weather", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"weather":[{"id":800}]}`))
	})
	mux.HandleFunc("/owm/forecast", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"list":[{"dt":1,"weather":[{"id":800}]},{"dt":2,"weather":[{"id":502}]}]}`))
	})
	mux.HandleFunc("/owm/geo/direct", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		DefaultCity:            "Chennai",
		Units:                  config.UnitsMetric,
		OutputDir:              t.TempDir(),
		DetectionWindowMinutes: 180,
		SeriesStepMinutes:      60,
		NominatimUserAgent:     "test",
		BotConcurrency:         1,
		Port:                   "8080",
	}
}

func endpoints(base string) app.Endpoints {
	return app.Endpoints{
		Nominatim:         base + "/nominatim",
		Windy:             base + "/windy",
		OpenWeatherMap:    base + "/owm",
		OpenWeatherMapGeo: base + "/owm/geo",
	}
}

func TestNew_ProvidersFollowKeys(t *testing.T) {
	tests := []struct {
		name  string
		windy string
		owm   string
		want  []string
	}{
		{"none", "", "", []string{}},
		{"windy only", "w", "", []string{"windy"}},
		{"owm only", "", "o", []string{"openweathermap"}},
		{"both in order", "w", "o", []string{"windy", "openweathermap"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.WindyAPIKey = tt.windy
			cfg.OpenWeatherAPIKey = tt.owm

			a, err := app.New(cfg, app.Endpoints{}, zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Service.ProviderNames())
			assert.Contains(t, a.Registry.Names(), "nominatim")
			assert.Equal(t, 180, a.Window.WindowMinutes)
			assert.Equal(t, 60, a.Window.StepMinutes)
		})
	}
}

func TestApp_EndToEnd_PrimaryDetection(t *testing.T) {
	server := upstream(t, `{"ts":[1,2,3],"precip-surface":[0,0.2,0]}`)
	cfg := testConfig(t)
	cfg.WindyAPIKey = "w"
	cfg.OpenWeatherAPIKey = "o"

	a, err := app.New(cfg, endpoints(server.URL), zerolog.Nop())
	require.NoError(t, err)

	res, err := a.Service.Generate(context.Background(), alert.Request{City: "Chennai", Window: a.Window})
	require.NoError(t, err)

	assert.Equal(t, "windy", res.Source)
	assert.Equal(t, "Chennai: precipitation expected in ~60 minutes.", res.Message)
	assert.FileExists(t, res.ImagePath)
}

func TestApp_EndToEnd_SecondaryFallback(t *testing.T) {
	server := upstream(t, `{"precip-surface":[0,0,0]}`)
	cfg := testConfig(t)
	cfg.WindyAPIKey = "w"
	cfg.OpenWeatherAPIKey = "o"

	a, err := app.New(cfg, endpoints(server.URL), zerolog.Nop())
	require.NoError(t, err)

	res, err := a.Service.Generate(context.Background(), alert.Request{City: "Chennai", Window: a.Window})
	require.NoError(t, err)

	assert.Equal(t, "openweathermap", res.Source)
	assert.Equal(t, 360.0, res.Detection.ETAMinutes)
}

func TestApp_EndToEnd_UnknownCity(t *testing.T) {
	server := upstream(t, `{}`)
	cfg := testConfig(t)
	cfg.OpenWeatherAPIKey = "o"

	a, err := app.New(cfg, endpoints(server.URL), zerolog.Nop())
	require.NoError(t, err)

	_, err = a.Service.Generate(context.Background(), alert.Request{City: "Atlantis"})
	assert.ErrorIs(t, err, weather.ErrCityNotFound)

	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApp_ProviderRetries(t *testing.T) {
	tests := []struct {
		name       string
		retries    int
		wantSource string
		wantCalls  int32
	}{
		{"no retries falls back", 0, "openweathermap", 1},
		{"one retry recovers primary", 1, "windy", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var windyCalls atomic.Int32
			mux := http.NewServeMux()
			mux.Handle("/", upstream(t, "").Config.Handler)
			mux.HandleFunc("/windy", func(w http.ResponseWriter, r *http.Request) {
				if windyCalls.Add(1) == 1 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"precip-surface":[0,0.2,0]}`))
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			cfg := testConfig(t)
			cfg.WindyAPIKey = "w"
			cfg.OpenWeatherAPIKey = "o"
			cfg.ProviderMaxRetries = tt.retries

			a, err := app.New(cfg, endpoints(server.URL), zerolog.Nop())
			require.NoError(t, err)

			res, err := a.Service.Generate(context.Background(), alert.Request{City: "Chennai", Window: a.Window})
			require.NoError(t, err)

			assert.Equal(t, tt.wantSource, res.Source)
			assert.Equal(t, tt.wantCalls, windyCalls.Load())
		})
	}
}
