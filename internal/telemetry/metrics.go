package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/weatherdiffusers/weatherdiffusers/internal/alert"

// AlertMetrics holds instruments for provider calls and detection outcomes.
type AlertMetrics struct {
	providerDuration metric.Float64Histogram
	providerTotal    metric.Int64Counter
	detections       metric.Int64Counter
	renders          metric.Int64Counter
}

// NewAlertMetrics registers the alert instruments on the global meter.
// With telemetry disabled the global meter is a no-op.
func NewAlertMetrics() (*AlertMetrics, error) {
	meter := otel.Meter(meterName)

	providerDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	providerTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	detections, err := meter.Int64Counter(
		"alert.detection.total",
		metric.WithDescription("Alert requests by detection outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	renders, err := meter.Int64Counter(
		"alert.render.total",
		metric.WithDescription("Rendered notice images"),
		metric.WithUnit("{image}"),
	)
	if err != nil {
		return nil, err
	}

	return &AlertMetrics{
		providerDuration: providerDuration,
		providerTotal:    providerTotal,
		detections:       detections,
		renders:          renders,
	}, nil
}

// RecordProvider records one provider fetch.
func (m *AlertMetrics) RecordProvider(ctx context.Context, provider string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Detach from request cancellation so the sample is still recorded.
	ctx = context.WithoutCancel(ctx)
	m.providerDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.providerTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDetection records the outcome of one alert request.
func (m *AlertMetrics) RecordDetection(ctx context.Context, source string, detected bool) {
	if m == nil {
		return
	}
	m.detections.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("provider.name", source),
		attribute.Bool("detected", detected),
	))
}

// RecordRender records a written image.
func (m *AlertMetrics) RecordRender(ctx context.Context, condition string) {
	if m == nil {
		return
	}
	m.renders.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("condition", condition),
	))
}
