package models

// Health is the liveness and readiness payload.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus reports the upstream circuits and the detection window that
// alerts use when a request does not override it.
type SystemStatus struct {
	Status    HealthStatus     `json:"status"`
	Time      Timestamp        `json:"time"`
	Window    DetectionWindow  `json:"detectionWindow"`
	Upstreams []UpstreamStatus `json:"upstreams"`
}

// DetectionWindow mirrors the series scan bounds.
type DetectionWindow struct {
	StepMinutes   int `json:"stepMinutes"`
	WindowMinutes int `json:"windowMinutes"`
}

// UpstreamStatus is one geocoder or forecast provider behind a circuit breaker.
type UpstreamStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`

	// Circuit is "closed", "half-open" or "open".
	Circuit             string `json:"circuit"`
	ConsecutiveFailures uint32 `json:"consecutiveFailures"`

	LastSuccessAt *Timestamp `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp `json:"lastFailureAt,omitempty"`

	// RetryAt is set while the circuit is open.
	RetryAt *Timestamp `json:"retryAt,omitempty"`
	Message *string    `json:"message,omitempty"`
}
