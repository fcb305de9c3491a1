package fraud

import (
	"context"
	"log/slog"
	"math"

	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
	"github.com/storesight/storesight/internal/service/correlation"
)

// BarcodeSwitching pairs high-confidence product recognitions with the POS
// transaction scanned at the same station and instant. Both sides are
// machine-timestamped at checkout, so the join window is zero. A predicted
// SKU that disagrees with the scanned one means the shopper likely swapped
// the barcode for a cheaper product.
type BarcodeSwitching struct {
	confidenceThreshold float64
	catalog             *record.Catalog
	logger              *slog.Logger
}

func NewBarcodeSwitching(cfg config.DetectionConfig, catalog *record.Catalog, logger *slog.Logger) *BarcodeSwitching {
	return &BarcodeSwitching{
		confidenceThreshold: cfg.ProductRecognitionConfidence,
		catalog:             catalog,
		logger:              logger.With("detector", "barcode_switching"),
	}
}

func (d *BarcodeSwitching) Name() string { return "barcode_switching" }

func (d *BarcodeSwitching) Detect(ctx context.Context, batch *record.Batch) ([]*event.Event, error) {
	confident := make([]*record.Record, 0, len(batch.Recognition))
	for _, r := range batch.Recognition {
		if r.Recognition.Confidence >= d.confidenceThreshold && r.Recognition.PredictedSKU != "" {
			confident = append(confident, r)
		}
	}

	res := correlation.Join(confident, batch.Pos, stationKey, 0)

	var events []*event.Event
	for _, pair := range res.Pairs {
		predicted := pair.Left.Recognition.PredictedSKU
		scanned := pair.Right.Pos.SKU
		if predicted == scanned {
			continue
		}

		confidence := pair.Left.Recognition.Confidence
		predictedPrice := d.catalog.PriceOf(predicted)
		scannedPrice := d.catalog.PriceOf(scanned)
		priceGap := math.Max(predictedPrice-scannedPrice, 0)

		gapFactor := 0.0
		if priceGap > 0 {
			gapFactor = math.Min(priceGap/5.0, 25)
		}
		risk := math.Min(70.0+(confidence-d.confidenceThreshold)*30.0+gapFactor, 100)

		meta := map[string]any{
			"predicted_sku": predicted,
			"scanned_sku":   scanned,
			"confidence":    confidence,
			"price_gap":     round2(priceGap),
		}
		if predictedPrice > 0 {
			meta["predicted_price"] = round2(predictedPrice)
		}
		if scannedPrice > 0 {
			meta["scanned_price"] = round2(scannedPrice)
		}

		events = append(events, &event.Event{
			Type:      event.TypeBarcodeSwitching,
			Timestamp: pair.Right.Timestamp,
			Station:   pair.Right.Station,
			Customer:  pair.Right.Pos.Customer,
			SKU:       predicted,
			Severity:  event.ClassifyFraudSeverity(risk),
			RiskScore: event.Round1(risk),
			Evidence: []event.Evidence{
				{Record: pair.Left},
				{Record: pair.Right},
			},
			Metadata: meta,
		})
	}

	d.logger.DebugContext(ctx, "barcode switching pass complete",
		"confident_recognitions", len(confident),
		"flagged", len(events))
	return events, nil
}

func stationKey(r *record.Record) (string, bool) {
	if r.Station == "" {
		return "", false
	}
	return r.Station, true
}
