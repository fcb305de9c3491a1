package ops

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
)

// Staffing recommends opening another lane when a station is both crowded
// and slow, or severely crowded on its own. The reason string names every
// condition that fired, not just the first.
type Staffing struct {
	queueThreshold int
	waitThreshold  float64
	logger         *slog.Logger
}

func NewStaffing(cfg config.DetectionConfig, logger *slog.Logger) *Staffing {
	return &Staffing{
		queueThreshold: cfg.QueueLengthAlert,
		waitThreshold:  cfg.WaitTimeAlert,
		logger:         logger.With("detector", "staffing"),
	}
}

func (d *Staffing) Name() string { return "staffing" }

func (d *Staffing) Detect(ctx context.Context, batch *record.Batch) ([]*event.Event, error) {
	var events []*event.Event
	severeThreshold := float64(d.queueThreshold) * 1.5

	for _, q := range batch.Queue {
		count := q.Queue.CustomerCount
		dwell := q.Queue.AvgDwellSeconds

		var reasons []string
		if count > d.queueThreshold && dwell > d.waitThreshold {
			reasons = append(reasons, fmt.Sprintf(
				"queue of %d exceeds %d with average wait %.0fs over %.0fs",
				count, d.queueThreshold, dwell, d.waitThreshold))
		}
		if float64(count) > severeThreshold {
			reasons = append(reasons, fmt.Sprintf(
				"queue of %d exceeds surge threshold %.1f", count, severeThreshold))
		}
		if len(reasons) == 0 {
			continue
		}

		risk := 58.0 + math.Max(float64(count-d.queueThreshold), 0)*4
		if dwell > d.waitThreshold {
			risk += math.Min((dwell-d.waitThreshold)/60*5, 20)
		}
		risk = math.Min(risk, 96)

		events = append(events, &event.Event{
			Type:      event.TypeStaffingNeeds,
			Timestamp: q.Timestamp,
			Station:   q.Station,
			Severity:  event.ClassifyOpsSeverity(risk),
			RiskScore: event.Round1(risk),
			Evidence:  []event.Evidence{{Record: q}},
			Metadata: map[string]any{
				"staff_type": "Cashier",
				"reason":     strings.Join(reasons, "; "),
			},
		})
	}
	return events, nil
}
