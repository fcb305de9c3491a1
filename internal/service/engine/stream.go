package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
)

// EmitFunc receives each newly detected event exactly once, in ID order.
type EmitFunc func(ctx context.Context, ev *event.Event) error

// StreamProcessor runs the batch detectors incrementally over a live feed.
// Records accumulate in a sliding buffer spanning the widest correlation
// window; every evalEvery arrivals the window-scoped detectors re-run over
// the buffer and new detections, identified by fingerprint, are emitted
// with monotonically increasing IDs. Absence-based detections whose
// correlation window is still open are held back until the feed moves past
// the window; an unmatched reading is not a detection while its counterpart
// can still arrive. Whole-run passes (inventory reconciliation,
// aggregators) wait for Flush.
type StreamProcessor struct {
	engine  *Engine
	runID   uuid.UUID
	horizon time.Duration
	hold    time.Duration

	products  *record.Catalog
	customers map[string]record.Customer

	buf       []*record.Record
	snapshots []*record.Record
	highWater time.Time
	seen      map[string]struct{}
	emitted   []*event.Event
	nextID    int64
	nextSeq   int64
	sinceEval int
	evalEvery int

	emit   EmitFunc
	logger *slog.Logger
}

// NewStreamProcessor sizes the sliding buffer from the widest window any
// detector correlates over, doubled so boundary matches are never evicted
// before their partner arrives.
func NewStreamProcessor(e *Engine, products *record.Catalog, customers map[string]record.Customer, cfg config.DetectionConfig, emit EmitFunc, logger *slog.Logger) *StreamProcessor {
	return &StreamProcessor{
		engine:    e,
		runID:     uuid.New(),
		horizon:   2 * widestWindow(cfg),
		hold:      cfg.RfidPosTimeWindow,
		products:  products,
		customers: customers,
		seen:      make(map[string]struct{}),
		evalEvery: 50,
		emit:      emit,
		logger:    logger.With("component", "stream_processor"),
	}
}

// Ingest accepts one live record. Snapshots are retained for the whole
// run; everything else ages out of the buffer past the horizon.
func (p *StreamProcessor) Ingest(ctx context.Context, r *record.Record) error {
	p.nextSeq++
	r.Seq = p.nextSeq
	if r.Timestamp.After(p.highWater) {
		p.highWater = r.Timestamp
	}

	if r.Kind == record.KindInventorySnapshot {
		p.snapshots = append(p.snapshots, r)
		return nil
	}

	p.buf = append(p.buf, r)
	p.evict(r.Timestamp)

	p.sinceEval++
	if p.sinceEval >= p.evalEvery {
		p.sinceEval = 0
		return p.evaluate(ctx, false)
	}
	return nil
}

// evict drops records that have fallen out of every correlation window.
// The buffer is near time order already, so the scan stops at the first
// survivor.
func (p *StreamProcessor) evict(now time.Time) {
	cutoff := now.Add(-p.horizon)
	i := 0
	for i < len(p.buf) && p.buf[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		p.buf = append(p.buf[:0:0], p.buf[i:]...)
	}
}

func (p *StreamProcessor) batch() *record.Batch {
	b := &record.Batch{Products: p.products, Customers: p.customers}
	for _, r := range p.buf {
		b.Add(r)
	}
	return b
}

// evaluate re-runs the window-scoped detectors over the current buffer.
// Re-detections of an already emitted event carry the same fingerprint
// and are dropped. Unless final, absence-based detections are filtered to
// those whose correlation window has already closed; held detections
// re-surface on a later pass or at Flush.
func (p *StreamProcessor) evaluate(ctx context.Context, final bool) error {
	b := p.batch()
	b.Finalize()

	var fresh []*event.Event
	for _, det := range p.engine.detectors {
		if det.Name() == "inventory_reconciliation" {
			continue
		}
		start := time.Now()
		events, err := det.Detect(ctx, b)
		p.engine.metrics.ObserveDetector(ctx, det.Name(), time.Since(start))
		if err != nil {
			return err
		}
		if !final && det.Name() == "scanner_avoidance" {
			events = p.windowClosed(events)
		}
		fresh = append(fresh, events...)
	}
	return p.publish(ctx, fresh)
}

// windowClosed keeps only detections whose correlation window has fallen
// behind the newest timestamp seen on the feed. A reading still inside its
// window is merely unmatched so far, not evidence of avoidance.
func (p *StreamProcessor) windowClosed(events []*event.Event) []*event.Event {
	closed := events[:0]
	for _, ev := range events {
		if ev.Timestamp.Add(p.hold).After(p.highWater) {
			continue
		}
		closed = append(closed, ev)
	}
	return closed
}

// Flush completes the run: a final detector pass, the whole-run inventory
// reconciliation over everything ever seen, then the aggregators over all
// events emitted so far. Returns the run summary.
func (p *StreamProcessor) Flush(ctx context.Context) (*Summary, error) {
	if err := p.evaluate(ctx, true); err != nil {
		return nil, err
	}

	if len(p.snapshots) > 0 {
		b := p.batch()
		b.Snapshots = append(b.Snapshots, p.snapshots...)
		b.Finalize()
		for _, det := range p.engine.detectors {
			if det.Name() != "inventory_reconciliation" {
				continue
			}
			events, err := det.Detect(ctx, b)
			if err != nil {
				return nil, err
			}
			if err := p.publish(ctx, events); err != nil {
				return nil, err
			}
		}
	}

	sorted := make([]*event.Event, len(p.emitted))
	copy(sorted, p.emitted)
	sortEvents(sorted)
	for _, agg := range p.engine.aggregators {
		derived, err := agg.Aggregate(ctx, sorted)
		if err != nil {
			return nil, err
		}
		if err := p.publish(ctx, derived); err != nil {
			return nil, err
		}
	}

	p.logger.InfoContext(ctx, "stream flushed",
		"records_buffered", len(p.buf),
		"events_emitted", len(p.emitted))
	return BuildSummary(p.runID, p.emitted), nil
}

// widestWindow is the longest interval any detector correlates over, which
// bounds how long a live record can still participate in a match.
func widestWindow(d config.DetectionConfig) time.Duration {
	w := d.RfidPosTimeWindow
	if d.SystemCrashDuration > w {
		w = d.SystemCrashDuration
	}
	if sw := d.StationAlertWindow(); sw > w {
		w = sw
	}
	return w
}

// publish deduplicates, identifies, validates and emits new events in
// time order.
func (p *StreamProcessor) publish(ctx context.Context, events []*event.Event) error {
	var fresh []*event.Event
	for _, ev := range events {
		fp := ev.Fingerprint()
		if _, dup := p.seen[fp]; dup {
			continue
		}
		p.seen[fp] = struct{}{}
		fresh = append(fresh, ev)
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].Timestamp.Before(fresh[j].Timestamp)
	})

	for _, ev := range fresh {
		p.nextID++
		ev.ID = p.nextID
		linkEvidence(ev)
		if err := ev.Validate(); err != nil {
			return err
		}
		p.engine.metrics.AddEvents(ctx, string(ev.Type), 1)
		if err := p.emit(ctx, ev); err != nil {
			return err
		}
		p.emitted = append(p.emitted, ev)
	}
	return nil
}
