package handler

import (
	"net/http"
	"time"

	"github.com/weatherdiffusers/weatherdiffusers/internal/api/models"
	"github.com/weatherdiffusers/weatherdiffusers/internal/api/response"
	"github.com/weatherdiffusers/weatherdiffusers/internal/detect"
	"github.com/weatherdiffusers/weatherdiffusers/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	window    detect.Window
}

// NewOpsHandler creates a new OpsHandler. registry may be nil.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry, window detect.Window) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
		window:    window,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
// The service is not ready while every registered upstream has its circuit open.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatusOK
	code := http.StatusOK

	upstreams := h.upstreamStatuses()
	if len(upstreams) > 0 && countStatus(upstreams, models.HealthStatusFail) == len(upstreams) {
		status = models.HealthStatusFail
		code = http.StatusServiceUnavailable
	}

	response.JSON(w, r, code, models.Health{
		Status: status,
		Time:   models.Timestamp(time.Now()),
	})
}

// SystemStatus handles GET /v1/ops/status - upstream circuits and detection window.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	upstreams := h.upstreamStatuses()

	overall := models.HealthStatusOK
	switch failed := countStatus(upstreams, models.HealthStatusFail); {
	case len(upstreams) > 0 && failed == len(upstreams):
		overall = models.HealthStatusFail
	case failed > 0 || countStatus(upstreams, models.HealthStatusDegraded) > 0:
		overall = models.HealthStatusDegraded
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status: overall,
		Time:   models.Timestamp(time.Now()),
		Window: models.DetectionWindow{
			StepMinutes:   h.window.StepMinutes,
			WindowMinutes: h.window.WindowMinutes,
		},
		Upstreams: upstreams,
	})
}

func (h *OpsHandler) upstreamStatuses() []models.UpstreamStatus {
	if h.registry == nil {
		return []models.UpstreamStatus{}
	}

	all := h.registry.All()
	out := make([]models.UpstreamStatus, 0, len(all))
	for _, uh := range all {
		us := models.UpstreamStatus{
			Name:                uh.Name,
			Status:              models.HealthStatusOK,
			Circuit:             uh.CircuitState.String(),
			ConsecutiveFailures: uh.Counts.ConsecutiveFailures,
			LastSuccessAt:       timestamp(uh.LastSuccessAt),
			LastFailureAt:       timestamp(uh.LastFailureAt),
			RetryAt:             timestamp(uh.RetryAt),
		}
		switch {
		case uh.Open():
			us.Status = models.HealthStatusFail
		case uh.HalfOpen():
			us.Status = models.HealthStatusDegraded
		}
		if uh.LastError != "" {
			msg := uh.LastError
			us.Message = &msg
		}
		out = append(out, us)
	}
	return out
}

func timestamp(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	ts := models.Timestamp(*t)
	return &ts
}

func countStatus(upstreams []models.UpstreamStatus, status models.HealthStatus) int {
	n := 0
	for _, u := range upstreams {
		if u.Status == status {
			n++
		}
	}
	return n
}
