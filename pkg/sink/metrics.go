package sink

import (
	"context"
	"math"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/selfdriving-car-go/pkg/training"
)

// Metrics records episode results as otel instruments.
type Metrics struct {
	episodes metric.Int64Counter
	steps    metric.Int64Histogram
	returns  metric.Float64Histogram
	epsilon  atomic.Uint64 // float64 bits
}

type MetricsOption func(*metricsConfig)

type metricsConfig struct {
	provider metric.MeterProvider
}

func WithMeterProvider(p metric.MeterProvider) MetricsOption {
	return func(c *metricsConfig) {
		c.provider = p
	}
}

func NewMetrics(opts ...MetricsOption) (*Metrics, error) {
	cfg := &metricsConfig{provider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(cfg)
	}
	meter := cfg.provider.Meter("sdc.training")
	m := &Metrics{}
	var err error
	if m.episodes, err = meter.Int64Counter("sdc.episodes",
		metric.WithDescription("Number of finished episodes"),
		metric.WithUnit("{episode}")); err != nil {
		return nil, err
	}
	if m.steps, err = meter.Int64Histogram("sdc.episode.steps",
		metric.WithDescription("Steps per episode"),
		metric.WithUnit("{step}")); err != nil {
		return nil, err
	}
	if m.returns, err = meter.Float64Histogram("sdc.episode.return",
		metric.WithDescription("Accumulated reward per episode")); err != nil {
		return nil, err
	}
	if _, err = meter.Float64ObservableGauge("sdc.epsilon",
		metric.WithDescription("Exploration rate after the last episode"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(math.Float64frombits(m.epsilon.Load()))
			return nil
		})); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) Publish(ctx context.Context, e *training.EpisodeSummary) error {
	attrs := metric.WithAttributes(
		attribute.String("outcome", e.Outcome),
		attribute.Bool("training", e.Training))
	m.episodes.Add(ctx, 1, attrs)
	m.steps.Record(ctx, int64(e.Steps), attrs)
	m.returns.Record(ctx, e.Return, attrs)
	m.epsilon.Store(math.Float64bits(e.Epsilon))
	return nil
}
