package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application instruments.
type Metrics struct {
	RequestCount    metric.Int64Counter
	RequestDuration metric.Float64Histogram
	StageDuration   metric.Float64Histogram
	ExtractionCount metric.Int64Counter
}

// InitMetrics creates the instruments on the global meter provider.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	requestCount, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram(
		"pipeline.stage.duration",
		metric.WithDescription("Duration of a pipeline stage in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	extractionCount, err := meter.Int64Counter(
		"pipeline.extraction.count",
		metric.WithDescription("Number of extraction pipelines by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCount:    requestCount,
		RequestDuration: requestDuration,
		StageDuration:   stageDuration,
		ExtractionCount: extractionCount,
	}, nil
}

// RecordRequestMetric records one served HTTP request.
func (m *Metrics) RecordRequestMetric(ctx context.Context, method, route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", statusCode),
	)
	m.RequestCount.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("error", err != nil),
	))
}

// RecordExtraction counts a finished pipeline run.
func (m *Metrics) RecordExtraction(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.ExtractionCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
