package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/roach88/mallet/internal/event"
)

// Metrics counts captured and resolved events.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	captured metric.Int64Counter
	resolved metric.Int64Counter
}

// NewMetrics creates the interception instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	captured, err := meter.Int64Counter("mallet.events.captured",
		metric.WithDescription("Events appended to connection stores"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create captured counter: %w", err)
	}

	resolved, err := meter.Int64Counter("mallet.events.resolved",
		metric.WithDescription("Events resolved by the execution gate, by outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create resolved counter: %w", err)
	}

	return &Metrics{captured: captured, resolved: resolved}, nil
}

// NoopMetrics returns Metrics backed by the no-op meter provider.
func NoopMetrics() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("mallet"))
	if err != nil {
		// the no-op meter never fails
		panic(err)
	}
	return m
}

func (m *Metrics) recordCaptured(ctx context.Context, t event.Type) {
	if m == nil {
		return
	}
	m.captured.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", t.String()),
	))
}

func (m *Metrics) recordResolved(ctx context.Context, t event.Type, outcome Outcome) {
	if m == nil {
		return
	}
	m.resolved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", t.String()),
		attribute.String("outcome", string(outcome)),
	))
}
