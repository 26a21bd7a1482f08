package windy_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherdiffusers/weatherdiffusers/internal/detect"
	"github.com/weatherdiffusers/weatherdiffusers/internal/provider/resilience"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather/windy"
)

var chennai = weather.Coordinate{Lat: 13.0827, Lon: 80.2707}

func newTestClient(endpoint string) *windy.Client {
	return windy.NewClient(windy.ClientConfig{
		APIKey:     "****",
		Endpoint:   endpoint,
		HTTPClient: resilience.NewClient(resilience.DefaultClientConfig("test")),
	})
}

func TestClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.InDelta(t, 13.0827, body["lat"], 0.0001)
		assert.InDelta(t, 80.2707, body["lon"], 0.0001)
		assert.Equal(t, "gfs", body["model"])
		assert.Equal(t, []interface{}{"precip", "prate"}, body["parameters"])
		assert.Equal(t, "****", body["key"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"ts": [1700000000000, 1700003600000, 1700007200000],
			"units": {"precip-surface": "m"},
			"precip-surface": [0, 0, 0.0004],
			"prate-surface": [0, 0.0001, 0],
			"warning": "test"
		}`))
	}))
	defer server.Close()

	snap, err := newTestClient(server.URL).Fetch(context.Background(), chennai)
	require.NoError(t, err)
	assert.Equal(t, weather.KindContinuous, snap.Kind)

	assert.Contains(t, snap.Series, "ts")
	assert.Contains(t, snap.Series, "precip")
	assert.Contains(t, snap.Series, "prate")
	assert.NotContains(t, snap.Series, "units")
	assert.NotContains(t, snap.Series, "warning")

	d, ok := detect.Evaluate(snap, detect.DefaultWindow())
	assert.True(t, ok)
	assert.Equal(t, 120.0, d.ETAMinutes, "precip wins over prate")
}

func TestClient_Fetch_NonSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid key"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Fetch(context.Background(), chennai)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid key")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_Fetch_ServerErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Fetch(context.Background(), chennai)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_Fetch_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1, 2, 3]`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Fetch(context.Background(), chennai)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding response")
}

func TestParseSeries(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKeys []string
		check    func(t *testing.T, s weather.TimeSeries)
	}{
		{
			name:     "base key kept when present",
			body:     `{"precip": [1], "precip-surface": [2]}`,
			wantKeys: []string{"precip", "precip-surface"},
			check: func(t *testing.T, s weather.TimeSeries) {
				assert.Equal(t, 1.0, s["precip"][0].Value)
			},
		},
		{
			name:     "suffix aliased to base",
			body:     `{"prate-surface": [0, 3]}`,
			wantKeys: []string{"prate", "prate-surface"},
			check: func(t *testing.T, s weather.TimeSeries) {
				assert.Equal(t, 3.0, s["prate"][1].Value)
			},
		},
		{
			name:     "non-array values dropped",
			body:     `{"units": {"a": "b"}, "warning": "x", "count": 3, "empty": null}`,
			wantKeys: []string{},
		},
		{
			name:     "non-numeric entries are invalid samples",
			body:     `{"precip": [null, "1.5", "abc", 2]}`,
			wantKeys: []string{"precip"},
			check: func(t *testing.T, s weather.TimeSeries) {
				require.Len(t, s["precip"], 4)
				assert.False(t, s["precip"][0].Valid)
				assert.True(t, s["precip"][1].Valid)
				assert.Equal(t, 1.5, s["precip"][1].Value)
				assert.False(t, s["precip"][2].Valid)
				assert.True(t, s["precip"][3].Valid)
			},
		},
		{
			name:     "empty array kept",
			body:     `{"precip": []}`,
			wantKeys: []string{"precip"},
		},
		{
			name:     "aliasing is deterministic",
			body:     `{"precip-b": [2], "precip-a": [1]}`,
			wantKeys: []string{"precip", "precip-a", "precip-b"},
			check: func(t *testing.T, s weather.TimeSeries) {
				assert.Equal(t, 1.0, s["precip"][0].Value)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series, err := windy.ParseSeries(strings.NewReader(tt.body))
			require.NoError(t, err)

			keys := make([]string, 0, len(series))
			for k := range series {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.wantKeys, keys)

			if tt.check != nil {
				tt.check(t, series)
			}
		})
	}
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, "windy", windy.NewClient(windy.ClientConfig{}).Name())
}
