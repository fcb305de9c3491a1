// Package engine orchestrates the detection pipeline: it runs every
// detector over a finalized batch, feeds the combined stream through the
// aggregators, and finalizes the result into an ordered, identified,
// validated event list plus a run summary.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/storesight/storesight/internal/domain/errors"
	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
	"github.com/storesight/storesight/internal/metrics"
	"github.com/storesight/storesight/internal/service/fraud"
	"github.com/storesight/storesight/internal/service/inventory"
	"github.com/storesight/storesight/internal/service/ops"
)

// Detector evaluates one rule over a full batch. Detectors are stateless
// between calls and must be deterministic for identical input.
type Detector interface {
	Name() string
	Detect(ctx context.Context, batch *record.Batch) ([]*event.Event, error)
}

// Aggregator derives cross-event findings from the time-ordered detector
// output. Aggregators run after every detector has finished and never see
// partial results.
type Aggregator interface {
	Name() string
	Aggregate(ctx context.Context, events []*event.Event) ([]*event.Event, error)
}

// Engine holds the configured detector and aggregator registries.
type Engine struct {
	detectors   []Detector
	aggregators []Aggregator
	logger      *slog.Logger
	metrics     *metrics.Registry
	tracer      trace.Tracer
}

// Result is one complete detection pass.
type Result struct {
	RunID   uuid.UUID
	Events  []*event.Event
	Summary *Summary
}

// New wires the standard registry. Detector order is fixed so identical
// input always yields identical event ordering.
func New(cfg *config.Config, catalog *record.Catalog, logger *slog.Logger, m *metrics.Registry, tracer trace.Tracer) *Engine {
	d := cfg.Detection
	return &Engine{
		detectors: []Detector{
			fraud.NewScannerAvoidance(d, catalog, logger),
			fraud.NewBarcodeSwitching(d, catalog, logger),
			fraud.NewWeightDiscrepancy(d, catalog, logger, m),
			ops.NewLongQueue(d, logger),
			ops.NewLongWait(d, logger),
			ops.NewGapMonitor(d, logger),
			ops.NewStaffing(d, logger),
			ops.NewStationPerformance(d, logger),
			inventory.NewReconciliation(d, logger),
			inventory.NewSuccessTracker(d, logger),
		},
		aggregators: []Aggregator{
			fraud.NewHighRiskCustomers(d, logger),
		},
		logger:  logger.With("component", "engine"),
		metrics: m,
		tracer:  tracer,
	}
}

// Run executes one full detection pass over the batch.
func (e *Engine) Run(ctx context.Context, batch *record.Batch) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.run")
	defer span.End()

	runID := uuid.New()
	batch.Finalize()

	e.logger.InfoContext(ctx, "detection pass starting",
		"run_id", runID,
		"records", batch.Len(),
		"detectors", len(e.detectors))

	detected, err := e.runDetectors(ctx, batch)
	if err != nil {
		return nil, err
	}

	// Aggregators see the detector output in timestamp order, with
	// same-timestamp events kept in detector registration order.
	sortEvents(detected)

	all := detected
	for _, agg := range e.aggregators {
		derived, err := agg.Aggregate(ctx, detected)
		if err != nil {
			return nil, apperrors.Wrap(err, "aggregator "+agg.Name())
		}
		all = append(all, derived...)
	}

	events, err := e.finalize(ctx, all)
	if err != nil {
		return nil, err
	}

	summary := BuildSummary(runID, events)
	e.logger.InfoContext(ctx, "detection pass complete",
		"run_id", runID,
		"events", len(events))

	return &Result{RunID: runID, Events: events, Summary: summary}, nil
}

func (e *Engine) runDetectors(ctx context.Context, batch *record.Batch) ([]*event.Event, error) {
	var out []*event.Event
	for _, det := range e.detectors {
		dctx, span := e.tracer.Start(ctx, "detector."+det.Name(),
			trace.WithAttributes(attribute.String("detector", det.Name())))
		start := time.Now()

		events, err := det.Detect(dctx, batch)

		e.metrics.ObserveDetector(dctx, det.Name(), time.Since(start))
		span.End()

		if err != nil {
			return nil, apperrors.Wrap(err, "detector "+det.Name())
		}
		out = append(out, events...)
	}
	return out, nil
}

// finalize orders the combined stream, assigns IDs, resolves event-typed
// evidence into linked_event_ids metadata, and validates every event.
func (e *Engine) finalize(ctx context.Context, events []*event.Event) ([]*event.Event, error) {
	sortEvents(events)

	for i, ev := range events {
		ev.ID = int64(i + 1)
	}
	for _, ev := range events {
		linkEvidence(ev)
		if err := ev.Validate(); err != nil {
			return nil, apperrors.NewInternalError("event failed validation").WithCause(err)
		}
	}

	byType := make(map[string]int64)
	for _, ev := range events {
		byType[string(ev.Type)]++
	}
	for t, n := range byType {
		e.metrics.AddEvents(ctx, t, n)
	}

	return events, nil
}

// linkEvidence materializes references to other events as an ID list so
// the serialized envelope stays self-contained.
func linkEvidence(ev *event.Event) {
	var linked []int64
	for _, ee := range ev.Evidence {
		if ee.Event != nil {
			linked = append(linked, ee.Event.ID)
		}
	}
	if len(linked) == 0 {
		return
	}
	if ev.Metadata == nil {
		ev.Metadata = make(map[string]any)
	}
	ev.Metadata["linked_event_ids"] = linked
}

// sortEvents is a stable sort by timestamp; ties keep collection order,
// which is detector registration order within a pass.
func sortEvents(events []*event.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
