package fraud

import (
	"context"
	"log/slog"
	"math"

	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
	"github.com/storesight/storesight/internal/metrics"
)

// WeightDiscrepancy is a stateless per-transaction check of the scanned
// weight against the catalog weight. A SKU missing from the catalog is a
// data-quality condition: the transaction is skipped and counted, never
// fatal.
type WeightDiscrepancy struct {
	tolerancePercent float64
	catalog          *record.Catalog
	logger           *slog.Logger
	metrics          *metrics.Registry
}

func NewWeightDiscrepancy(cfg config.DetectionConfig, catalog *record.Catalog, logger *slog.Logger, m *metrics.Registry) *WeightDiscrepancy {
	return &WeightDiscrepancy{
		tolerancePercent: cfg.WeightTolerancePercent,
		catalog:          catalog,
		logger:           logger.With("detector", "weight_discrepancy"),
		metrics:          m,
	}
}

func (d *WeightDiscrepancy) Name() string { return "weight_discrepancy" }

func (d *WeightDiscrepancy) Detect(ctx context.Context, batch *record.Batch) ([]*event.Event, error) {
	var events []*event.Event
	unknown := 0

	for _, pos := range batch.Pos {
		product, ok := d.catalog.Lookup(pos.Pos.SKU)
		if !ok {
			unknown++
			if d.metrics != nil {
				d.metrics.AddUnknownSKU(ctx, d.Name())
			}
			d.logger.DebugContext(ctx, "sku not in catalog, skipping weight check", "sku", pos.Pos.SKU)
			continue
		}
		if product.ExpectedWeightG <= 0 {
			continue
		}

		actual := pos.Pos.WeightG
		diffPct := math.Abs(actual-product.ExpectedWeightG) / product.ExpectedWeightG * 100
		if diffPct <= d.tolerancePercent {
			continue
		}

		price := d.catalog.PriceOf(pos.Pos.SKU)
		weightFactor := math.Min(math.Log(diffPct+1)*15, 35)
		priceFactor := 0.0
		if price > 0 {
			priceFactor = math.Min(price/40.0, 15)
		}
		risk := math.Min(55.0+weightFactor+priceFactor, 100)

		meta := map[string]any{
			"expected_weight":    product.ExpectedWeightG,
			"actual_weight":      actual,
			"difference_percent": round2(diffPct),
		}
		if price > 0 {
			meta["estimated_loss"] = round2(price)
		}

		events = append(events, &event.Event{
			Type:      event.TypeWeightDiscrepancy,
			Timestamp: pos.Timestamp,
			Station:   pos.Station,
			Customer:  pos.Pos.Customer,
			SKU:       pos.Pos.SKU,
			Severity:  event.ClassifyFraudSeverity(risk),
			RiskScore: event.Round1(risk),
			Evidence:  []event.Evidence{{Record: pos}},
			Metadata:  meta,
		})
	}

	if unknown > 0 {
		d.logger.InfoContext(ctx, "transactions skipped for unknown sku", "count", unknown)
	}
	return events, nil
}
