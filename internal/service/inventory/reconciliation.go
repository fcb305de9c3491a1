package inventory

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
)

// Reconciliation seeds a ledger from the latest inventory snapshot,
// replays POS sales and RFID observations from that point forward, and
// flags SKUs whose observed stock drifts beyond the threshold. SKUs whose
// expected count reaches zero are excluded from the percentage check and
// reported separately when tags are still being observed.
type Reconciliation struct {
	thresholdPercent float64
	logger           *slog.Logger
}

func NewReconciliation(cfg config.DetectionConfig, logger *slog.Logger) *Reconciliation {
	return &Reconciliation{
		thresholdPercent: cfg.InventoryDiscrepancyThreshold,
		logger:           logger.With("detector", "inventory_reconciliation"),
	}
}

func (d *Reconciliation) Name() string { return "inventory_reconciliation" }

func (d *Reconciliation) Detect(ctx context.Context, batch *record.Batch) ([]*event.Event, error) {
	if len(batch.Snapshots) == 0 {
		d.logger.DebugContext(ctx, "no inventory snapshot, skipping reconciliation")
		return nil, nil
	}
	snapshot := batch.Snapshots[len(batch.Snapshots)-1]

	ledger := NewLedger(snapshot)
	asOf := snapshot.Timestamp
	for _, pos := range batch.Pos {
		if pos.Timestamp.Before(snapshot.Timestamp) {
			continue
		}
		ledger.ApplySale(pos)
		asOf = laterOf(asOf, pos.Timestamp)
	}
	for _, rfid := range batch.Rfid {
		if rfid.Timestamp.Before(snapshot.Timestamp) {
			continue
		}
		ledger.Observe(rfid)
		asOf = laterOf(asOf, rfid.Timestamp)
	}

	var events []*event.Event
	for _, entry := range ledger.Entries() {
		if entry.Expected <= 0 {
			if entry.Observed > 0 {
				events = append(events, d.unexpectedStock(entry, asOf, snapshot))
			}
			continue
		}

		diffPct := math.Abs(float64(entry.Observed-entry.Expected)) / float64(entry.Expected) * 100
		if diffPct <= d.thresholdPercent {
			continue
		}

		risk := math.Min(50+diffPct*1.1, 95)
		events = append(events, &event.Event{
			Type:      event.TypeInventoryDiscrepancy,
			Timestamp: asOf,
			SKU:       entry.SKU,
			Severity:  event.ClassifyOpsSeverity(risk),
			RiskScore: event.Round1(risk),
			Evidence:  []event.Evidence{{Record: snapshot}},
			Metadata: map[string]any{
				"expected_inventory": entry.Expected,
				"actual_inventory":   entry.Observed,
				"difference":         entry.Observed - entry.Expected,
				"difference_percent": event.Round1(diffPct),
			},
		})
	}

	return events, nil
}

// unexpectedStock covers SKUs sold down to zero that RFID still sees:
// the percentage is undefined, so they are reported as their own case.
func (d *Reconciliation) unexpectedStock(entry *LedgerEntry, asOf time.Time, snapshot *record.Record) *event.Event {
	risk := 65.0
	return &event.Event{
		Type:      event.TypeInventoryDiscrepancy,
		Timestamp: asOf,
		SKU:       entry.SKU,
		Severity:  event.ClassifyOpsSeverity(risk),
		RiskScore: risk,
		Evidence:  []event.Evidence{{Record: snapshot}},
		Metadata: map[string]any{
			"expected_inventory": entry.Expected,
			"actual_inventory":   entry.Observed,
			"unexpected_stock":   true,
		},
	}
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
