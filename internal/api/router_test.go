package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherdiffusers/weatherdiffusers/internal/alert"
	"github.com/weatherdiffusers/weatherdiffusers/internal/api"
	"github.com/weatherdiffusers/weatherdiffusers/internal/api/models"
	"github.com/weatherdiffusers/weatherdiffusers/internal/detect"
	"github.com/weatherdiffusers/weatherdiffusers/internal/provider/resilience"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
)

const testImage = "chennai_precipitation_20240601T120000Z.png"

type stubGenerator struct {
	imageDir string
	last     alert.Request
}

func (s *stubGenerator) Generate(_ context.Context, req alert.Request) (*alert.Result, error) {
	s.last = req
	if req.City == "Atlantis" {
		return nil, weather.ErrCityNotFound
	}
	return &alert.Result{
		Place:     weather.Place{Coordinate: weather.Coordinate{Lat: 13.0827, Lon: 80.2707}, Name: req.City},
		Detection: weather.Detection{Condition: weather.ConditionPrecipitation, ETAMinutes: 60},
		Detected:  true,
		Source:    "windy",
		ImagePath: filepath.Join(s.imageDir, testImage),
		Message:   req.City + ": precipitation expected in ~60 minutes.",
	}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *stubGenerator) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, testImage), []byte("\x89PNG\r\n\x1a\n"), 0o600))

	gen := &stubGenerator{imageDir: dir}
	registry := resilience.NewRegistry()
	_ = resilience.NewClient(resilience.ClientConfig{Name: "windy", Registry: registry})

	router := api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2024-01-01T00:00:00Z",
		Logger:    zerolog.New(io.Discard),
		Generator: gen,
		Registry:  registry,
		Window:    detect.DefaultWindow(),
		ImageDir:  dir,
	})
	return router, gen
}

func TestRouter_HealthCheck(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.NotEmpty(t, health.Time)
}

func TestRouter_ReadinessCheck(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)
	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_SystemStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	err := json.Unmarshal(w.Body.Bytes(), &status)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Upstreams, 1)
	assert.Equal(t, "windy", status.Upstreams[0].Name)
	assert.Equal(t, "closed", status.Upstreams[0].Circuit)
	assert.Equal(t, models.DetectionWindow{StepMinutes: 60, WindowMinutes: 180}, status.Window)
}

func TestRouter_CreateAlert(t *testing.T) {
	router, gen := newTestRouter(t)

	body := `{"city":"Chennai","windowMinutes":120}`
	req := httptest.NewRequest(http.MethodPost, "/v1/alerts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, detect.Window{StepMinutes: 60, WindowMinutes: 120}, gen.last.Window)

	var got models.Alert
	err := json.Unmarshal(w.Body.Bytes(), &got)
	require.NoError(t, err)

	assert.Equal(t, "Chennai", got.City)
	assert.True(t, got.Detected)
	require.NotNil(t, got.ImageURL)

	// The returned URL serves the rendered image.
	imgReq := httptest.NewRequest(http.MethodGet, *got.ImageURL, http.NoBody)
	imgW := httptest.NewRecorder()

	router.ServeHTTP(imgW, imgReq)

	assert.Equal(t, http.StatusOK, imgW.Code)
	assert.Equal(t, "image/png", imgW.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", imgW.Header().Get("X-Content-Type-Options"))
}

func TestRouter_CreateAlert_CityNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/alerts", strings.NewReader(`{"city":"Atlantis"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var problem models.Problem
	err := json.Unmarshal(w.Body.Bytes(), &problem)
	require.NoError(t, err)
	assert.Equal(t, models.ProblemTypeCityNotFound, problem.Type)
	assert.Equal(t, w.Header().Get("X-Request-Id"), problem.TraceID)
}

func TestRouter_CreateAlert_ValidationError(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/alerts", strings.NewReader(`{"windowMinutes":5000}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var problem models.Problem
	err := json.Unmarshal(w.Body.Bytes(), &problem)
	require.NoError(t, err)
	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	assert.Len(t, problem.Errors, 2)
}

func TestRouter_CreateAlert_UnsupportedMediaType(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/alerts", strings.NewReader("city=Chennai"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_CreateAlert_RateLimited(t *testing.T) {
	router, _ := newTestRouter(t)

	var last *httptest.ResponseRecorder
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/alerts", strings.NewReader(`{"city":"Chennai"}`))
		req.Header.Set("Content-Type", "application/json")
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}

func TestRouter_GetAlertImage_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts/images/missing.png", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RequestID_Generated(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	requestID := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Contains(t, requestID, "req_")
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom_request_id")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, "custom_request_id", w.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/nonexistent", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
