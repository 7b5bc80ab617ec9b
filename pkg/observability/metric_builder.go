package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// instrument names one codetree metric.
type instrument struct {
	name string
	desc string
	unit string
}

// metricBuilder creates the instruments of one metric set and keeps the
// first creation error, so a constructor checks once at the end.
type metricBuilder struct {
	meter metric.Meter
	err   error
}

func newMetricBuilder(mt metric.Meter) *metricBuilder {
	return &metricBuilder{meter: mt}
}

func (b *metricBuilder) counter(in instrument) metric.Int64Counter {
	c, err := b.meter.Int64Counter(in.name, metric.WithDescription(in.desc), metric.WithUnit(in.unit))
	b.fail(in, err)

	return c
}

func (b *metricBuilder) upDownCounter(in instrument) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(in.name, metric.WithDescription(in.desc), metric.WithUnit(in.unit))
	b.fail(in, err)

	return c
}

// durationHistogram records seconds over durationBucketBoundaries.
func (b *metricBuilder) durationHistogram(in instrument) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(in.name,
		metric.WithDescription(in.desc),
		metric.WithUnit(in.unit),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	b.fail(in, err)

	return h
}

func (b *metricBuilder) observableCounter(in instrument) metric.Int64ObservableCounter {
	c, err := b.meter.Int64ObservableCounter(in.name, metric.WithDescription(in.desc), metric.WithUnit(in.unit))
	b.fail(in, err)

	return c
}

func (b *metricBuilder) gauge(in instrument) metric.Int64ObservableGauge {
	g, err := b.meter.Int64ObservableGauge(in.name, metric.WithDescription(in.desc), metric.WithUnit(in.unit))
	b.fail(in, err)

	return g
}

func (b *metricBuilder) fail(in instrument, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("create %s: %w", in.name, err)
	}
}
