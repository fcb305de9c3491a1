package inventory

import (
	"context"
	"log/slog"
	"time"

	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
	"github.com/storesight/storesight/internal/service/correlation"
)

// SuccessTracker records the baseline of transactions where POS, RFID and
// product recognition all agree on the same SKU at the same station inside
// the match window. Success events feed summary statistics only, never
// alerting.
type SuccessTracker struct {
	window time.Duration
	logger *slog.Logger
}

func NewSuccessTracker(cfg config.DetectionConfig, logger *slog.Logger) *SuccessTracker {
	return &SuccessTracker{
		window: cfg.RfidPosTimeWindow,
		logger: logger.With("detector", "success_tracker"),
	}
}

func (d *SuccessTracker) Name() string { return "success_tracker" }

func (d *SuccessTracker) Detect(ctx context.Context, batch *record.Batch) ([]*event.Event, error) {
	triples := correlation.JoinThree(batch.Pos, batch.Rfid, batch.Recognition, agreementKey, d.window)

	events := make([]*event.Event, 0, len(triples))
	for _, t := range triples {
		pos := t.Left
		events = append(events, &event.Event{
			Type:      event.TypeSuccess,
			Timestamp: pos.Timestamp,
			Station:   pos.Station,
			Customer:  pos.Pos.Customer,
			SKU:       pos.Pos.SKU,
			Severity:  event.SeverityLow,
			RiskScore: 5,
			Evidence: []event.Evidence{
				{Record: t.Left},
				{Record: t.Mid},
				{Record: t.Right},
			},
			Metadata: map[string]any{
				"service_score": 95,
			},
		})
	}

	d.logger.DebugContext(ctx, "success tracking pass complete", "agreed", len(events))
	return events, nil
}

// agreementKey joins all three streams on SKU plus station; recognition
// records contribute their predicted SKU, so a key match already implies
// SKU agreement.
func agreementKey(r *record.Record) (string, bool) {
	sku, ok := r.SKU()
	if !ok || r.Station == "" {
		return "", false
	}
	return sku + "|" + r.Station, true
}
