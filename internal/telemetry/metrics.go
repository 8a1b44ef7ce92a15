package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/obiente/translate/goanalyze/internal/errorsx"
)

const meterName = "goanalyze"

// Metrics holds the service instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests  metric.Int64Counter
	chunks    metric.Int64Counter
	errors    metric.Int64Counter
	active    metric.Int64UpDownCounter
	inference metric.Float64Histogram
}

// New creates the instruments on the global meter provider.
func New() (*Metrics, error) {
	return NewWithMeter(otel.Meter(meterName))
}

func NewWithMeter(meter metric.Meter) (*Metrics, error) {
	requests, err := meter.Int64Counter("analyze.requests",
		metric.WithDescription("Analysis streams started"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating analyze.requests counter: %w", err)
	}
	chunks, err := meter.Int64Counter("analyze.chunks",
		metric.WithDescription("Chunk records delivered to clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating analyze.chunks counter: %w", err)
	}
	errs, err := meter.Int64Counter("analyze.errors",
		metric.WithDescription("Analysis streams that ended in error, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating analyze.errors counter: %w", err)
	}
	active, err := meter.Int64UpDownCounter("analyze.active",
		metric.WithDescription("Analysis streams in progress"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating analyze.active counter: %w", err)
	}
	dur, err := meter.Float64Histogram("inference.duration",
		metric.WithDescription("Duration of single model calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inference.duration histogram: %w", err)
	}
	return &Metrics{requests: requests, chunks: chunks, errors: errs, active: active, inference: dur}, nil
}

// StreamStarted counts a new stream and marks it active. The returned func
// marks it finished.
func (m *Metrics) StreamStarted(ctx context.Context, transport string) func() {
	if m == nil {
		return func() {}
	}
	attrs := metric.WithAttributes(attribute.String("transport", transport))
	m.requests.Add(ctx, 1, attrs)
	m.active.Add(ctx, 1, attrs)
	return func() { m.active.Add(context.WithoutCancel(ctx), -1, attrs) }
}

func (m *Metrics) ChunkSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.chunks.Add(ctx, 1)
}

func (m *Metrics) StreamFailed(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.errors.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("reason", string(errorsx.Reason(err))),
	))
}

// ObserveInference implements inference.Observer.
func (m *Metrics) ObserveInference(ctx context.Context, model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.inference.Record(context.WithoutCancel(ctx), d.Seconds(), metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("status", status),
	))
}
