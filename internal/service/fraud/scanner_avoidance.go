// Package fraud holds the checkout fraud detectors: scanner avoidance,
// barcode switching, weight discrepancies, and the high-risk customer
// aggregation built on top of them.
package fraud

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
	"github.com/storesight/storesight/internal/service/correlation"
)

// ScannerAvoidance flags RFID tags seen in the scan area that never show
// up as a POS transaction for the same SKU and station inside the match
// window. The unmatched side of the windowed join IS the signal; a window
// closing without a counterpart is not an error.
type ScannerAvoidance struct {
	window  time.Duration
	catalog *record.Catalog
	logger  *slog.Logger
}

func NewScannerAvoidance(cfg config.DetectionConfig, catalog *record.Catalog, logger *slog.Logger) *ScannerAvoidance {
	return &ScannerAvoidance{
		window:  cfg.RfidPosTimeWindow,
		catalog: catalog,
		logger:  logger.With("detector", "scanner_avoidance"),
	}
}

func (d *ScannerAvoidance) Name() string { return "scanner_avoidance" }

func (d *ScannerAvoidance) Detect(ctx context.Context, batch *record.Batch) ([]*event.Event, error) {
	inZone := make([]*record.Record, 0, len(batch.Rfid))
	for _, r := range batch.Rfid {
		if r.Rfid.Zone == record.ZoneScanArea && r.Rfid.SKU != "" {
			inZone = append(inZone, r)
		}
	}

	res := correlation.Join(inZone, batch.Pos, skuStationKey, d.window)

	events := make([]*event.Event, 0, len(res.UnmatchedLeft))
	for _, rfid := range res.UnmatchedLeft {
		sku := rfid.Rfid.SKU
		price := d.catalog.PriceOf(sku)

		priceFactor := 0.0
		if price > 0 {
			priceFactor = math.Min(price/30.0, 20)
		}
		risk := math.Min(75.0+priceFactor+5.0, 100)

		meta := map[string]any{
			"epc":  rfid.Rfid.EPC,
			"zone": string(rfid.Rfid.Zone),
		}
		if price > 0 {
			meta["estimated_loss"] = round2(price)
		}

		events = append(events, &event.Event{
			Type:      event.TypeScannerAvoidance,
			Timestamp: rfid.Timestamp,
			Station:   rfid.Station,
			SKU:       sku,
			Severity:  event.SeverityHigh,
			RiskScore: event.Round1(risk),
			Evidence:  []event.Evidence{{Record: rfid}},
			Metadata:  meta,
		})
	}

	d.logger.DebugContext(ctx, "scanner avoidance pass complete",
		"rfid_in_zone", len(inZone),
		"matched", len(res.Pairs),
		"flagged", len(events))
	return events, nil
}

func skuStationKey(r *record.Record) (string, bool) {
	sku, ok := r.SKU()
	if !ok {
		return "", false
	}
	return sku + "|" + r.Station, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
