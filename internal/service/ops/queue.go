// Package ops holds the operational detectors: queue and wait monitoring,
// the staffing heuristic, the per-station system health monitor, and the
// station performance aggregation.
package ops

import (
	"context"
	"log/slog"
	"math"

	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
)

// LongQueue flags queue samples whose customer count exceeds the alert
// threshold.
type LongQueue struct {
	threshold int
	logger    *slog.Logger
}

func NewLongQueue(cfg config.DetectionConfig, logger *slog.Logger) *LongQueue {
	return &LongQueue{
		threshold: cfg.QueueLengthAlert,
		logger:    logger.With("detector", "long_queue"),
	}
}

func (d *LongQueue) Name() string { return "long_queue" }

func (d *LongQueue) Detect(ctx context.Context, batch *record.Batch) ([]*event.Event, error) {
	var events []*event.Event
	for _, q := range batch.Queue {
		count := q.Queue.CustomerCount
		if count <= d.threshold {
			continue
		}
		risk := math.Min(48+float64(count-d.threshold)*8, 92)
		events = append(events, &event.Event{
			Type:      event.TypeLongQueue,
			Timestamp: q.Timestamp,
			Station:   q.Station,
			Severity:  event.ClassifyOpsSeverity(risk),
			RiskScore: event.Round1(risk),
			Evidence:  []event.Evidence{{Record: q}},
			Metadata: map[string]any{
				"customer_count": count,
			},
		})
	}
	return events, nil
}

// LongWait flags queue samples whose average dwell time exceeds the wait
// alert threshold. Independent of LongQueue; both may fire for the same
// sample.
type LongWait struct {
	thresholdSeconds float64
	logger           *slog.Logger
}

func NewLongWait(cfg config.DetectionConfig, logger *slog.Logger) *LongWait {
	return &LongWait{
		thresholdSeconds: cfg.WaitTimeAlert,
		logger:           logger.With("detector", "long_wait"),
	}
}

func (d *LongWait) Name() string { return "long_wait" }

func (d *LongWait) Detect(ctx context.Context, batch *record.Batch) ([]*event.Event, error) {
	var events []*event.Event
	for _, q := range batch.Queue {
		dwell := q.Queue.AvgDwellSeconds
		if dwell <= d.thresholdSeconds {
			continue
		}
		overage := dwell - d.thresholdSeconds
		timeRisk := math.Min(overage/60*15, 35)
		crowdRisk := math.Min(float64(q.Queue.CustomerCount)*3, 15)
		risk := math.Min(45+timeRisk+crowdRisk, 90)
		events = append(events, &event.Event{
			Type:      event.TypeLongWait,
			Timestamp: q.Timestamp,
			Station:   q.Station,
			Severity:  event.ClassifyOpsSeverity(risk),
			RiskScore: event.Round1(risk),
			Evidence:  []event.Evidence{{Record: q}},
			Metadata: map[string]any{
				"wait_time_seconds": event.Round1(dwell),
				"customer_count":    q.Queue.CustomerCount,
			},
		})
	}
	return events, nil
}
