// Package handler provides HTTP handlers for the alert API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/weatherdiffusers/weatherdiffusers/internal/alert"
	"github.com/weatherdiffusers/weatherdiffusers/internal/api/middleware"
	"github.com/weatherdiffusers/weatherdiffusers/internal/api/models"
	"github.com/weatherdiffusers/weatherdiffusers/internal/api/response"
	"github.com/weatherdiffusers/weatherdiffusers/internal/detect"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
)

// ImagePathPrefix is where rendered images are served from.
const ImagePathPrefix = "/v1/alerts/images/"

const maxBodyBytes = 1 << 16

// AlertGenerator produces alerts.
type AlertGenerator interface {
	Generate(ctx context.Context, req alert.Request) (*alert.Result, error)
}

// AlertHandler handles alert endpoints.
type AlertHandler struct {
	generator AlertGenerator
	window    detect.Window
	imageDir  string
	logger    zerolog.Logger
	validate  *validator.Validate
}

// NewAlertHandler creates a new AlertHandler. window supplies defaults for
// requests that omit windowMinutes or stepMinutes; imageDir is the renderer's
// output directory.
func NewAlertHandler(generator AlertGenerator, window detect.Window, imageDir string, logger zerolog.Logger) *AlertHandler {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)

	return &AlertHandler{
		generator: generator,
		window:    window,
		imageDir:  imageDir,
		logger:    logger,
		validate:  v,
	}
}

// CreateAlert handles POST /v1/alerts - geocode, detect and render.
func (h *AlertHandler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var input models.AlertRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	input.City = strings.TrimSpace(input.City)

	if err := h.validate.Struct(input); err != nil {
		response.BadRequest(w, r, "request validation failed", fieldErrors(err))
		return
	}

	window := h.window
	if input.WindowMinutes != nil {
		window.WindowMinutes = *input.WindowMinutes
	}
	if input.StepMinutes != nil {
		window.StepMinutes = *input.StepMinutes
	}

	mode := alert.ImageOnSignal
	if input.ForceImage {
		mode = alert.ImageForced
	}

	res, err := h.generator.Generate(r.Context(), alert.Request{
		City:   input.City,
		Window: window,
		Image:  mode,
	})
	switch {
	case errors.Is(err, weather.ErrCityNotFound):
		response.Error(w, r, models.NewCityNotFound(middleware.GetRequestID(r.Context()), input.City))
		return
	case errors.Is(err, alert.ErrInvalidWindow):
		response.BadRequest(w, r, err.Error(), nil)
		return
	case errors.Is(err, alert.ErrEmptyCity):
		response.BadRequest(w, r, err.Error(), []models.FieldError{{Field: "city", Message: "is required", Code: "REQUIRED"}})
		return
	case err != nil:
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("city", input.City).
			Msg("alert generation failed")
		response.InternalError(w, r, "failed to generate alert")
		return
	}

	response.JSON(w, r, http.StatusOK, toAlert(res))
}

// GetAlertImage handles GET /v1/alerts/images/{name} - serve a rendered image.
func (h *AlertHandler) GetAlertImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !validImageName(name) {
		response.NotFound(w, r, "image not found")
		return
	}

	path := filepath.Join(h.imageDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		response.NotFound(w, r, "image not found")
		return
	}

	response.PNG(w, r, path)
}

func toAlert(res *alert.Result) models.Alert {
	out := models.Alert{
		ID:         "alt_" + uuid.New().String(),
		City:       res.Place.Name,
		Location:   models.Point{Lat: res.Place.Lat, Lon: res.Place.Lon},
		Detected:   res.Detected,
		Condition:  models.Condition(res.Detection.Condition),
		ETAMinutes: int(res.Detection.ETAMinutes),
		Message:    res.Message,
		Prompt:     res.Prompt,
		CreatedAt:  models.Timestamp(time.Now()),
	}
	if res.Source != "" {
		source := res.Source
		out.Source = &source
	}
	if res.ImagePath != "" {
		url := ImagePathPrefix + filepath.Base(res.ImagePath)
		out.ImageURL = &url
	}
	return out
}

func validImageName(name string) bool {
	if name == "" || !strings.HasSuffix(name, ".png") {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return filepath.Base(name) == name
}

func fieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fe.Field(),
			Message: "failed " + fe.Tag() + " validation",
			Code:    strings.ToUpper(fe.Tag()),
		})
	}
	return out
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
