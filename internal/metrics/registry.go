package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds the pipeline metrics. All instruments come from one meter
// so a single provider swap silences or enables everything.
type Registry struct {
	meter metric.Meter

	RecordsIngested  metric.Int64Counter
	RecordsMalformed metric.Int64Counter
	UnknownSKUs      metric.Int64Counter
	EventsEmitted    metric.Int64Counter
	DetectorDuration metric.Float64Histogram
}

// NewRegistry creates the pipeline instrument set on the given meter.
func NewRegistry(meter metric.Meter) (*Registry, error) {
	r := &Registry{meter: meter}

	var err error
	if r.RecordsIngested, err = meter.Int64Counter(
		"storesight.records.ingested",
		metric.WithDescription("Normalized records accepted per source stream"),
	); err != nil {
		return nil, err
	}
	if r.RecordsMalformed, err = meter.Int64Counter(
		"storesight.records.malformed",
		metric.WithDescription("Input lines skipped as malformed"),
	); err != nil {
		return nil, err
	}
	if r.UnknownSKUs, err = meter.Int64Counter(
		"storesight.records.unknown_sku",
		metric.WithDescription("Records skipped because the SKU is absent from the catalog"),
	); err != nil {
		return nil, err
	}
	if r.EventsEmitted, err = meter.Int64Counter(
		"storesight.events.emitted",
		metric.WithDescription("Detected events emitted per event type"),
	); err != nil {
		return nil, err
	}
	if r.DetectorDuration, err = meter.Float64Histogram(
		"storesight.detector.duration",
		metric.WithDescription("Wall time of one detector pass"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) AddIngested(ctx context.Context, source string, n int64) {
	r.RecordsIngested.Add(ctx, n, metric.WithAttributes(attribute.String("source", source)))
}

func (r *Registry) AddMalformed(ctx context.Context, source string, n int64) {
	r.RecordsMalformed.Add(ctx, n, metric.WithAttributes(attribute.String("source", source)))
}

func (r *Registry) AddUnknownSKU(ctx context.Context, detector string) {
	r.UnknownSKUs.Add(ctx, 1, metric.WithAttributes(attribute.String("detector", detector)))
}

func (r *Registry) AddEvents(ctx context.Context, eventType string, n int64) {
	r.EventsEmitted.Add(ctx, n, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (r *Registry) ObserveDetector(ctx context.Context, detector string, d time.Duration) {
	r.DetectorDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("detector", detector)))
}
