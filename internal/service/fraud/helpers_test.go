package fraud

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"

	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
	"github.com/storesight/storesight/internal/metrics"
)

var testBase = time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDetectionConfig() config.DetectionConfig {
	return config.DetectionConfig{
		WeightTolerancePercent:        15,
		ProductRecognitionConfidence:  0.75,
		QueueLengthAlert:              5,
		WaitTimeAlert:                 300,
		DwellTimeAlert:                180,
		InventoryDiscrepancyThreshold: 10,
		SystemCrashDuration:           30 * time.Second,
		RfidPosTimeWindow:             10 * time.Second,
		StationAlertWaitThreshold:     300,
		StationAlertOccurrences:       3,
		StationAlertWindowMinutes:     15,
		HighRiskCustomerEvents:        2,
		HighRiskCustomerScore:         80,
	}
}

func testRegistry(t *testing.T) *metrics.Registry {
	t.Helper()
	r, err := metrics.NewRegistry(noopmetric.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return r
}

func testCatalog() *record.Catalog {
	return record.NewCatalog([]record.Product{
		{SKU: "PRD_CHEAP", Name: "Gum", ExpectedWeightG: 20, Price: decimal.NewFromFloat(1.50)},
		{SKU: "PRD_MID", Name: "Coffee", ExpectedWeightG: 500, Price: decimal.NewFromFloat(12.00)},
		{SKU: "PRD_DEAR", Name: "Whisky", ExpectedWeightG: 1200, Price: decimal.NewFromFloat(89.99)},
	})
}

func posRec(offset time.Duration, station, customer, sku string, weightG float64, seq int64) *record.Record {
	return &record.Record{
		Kind:      record.KindPosTransaction,
		Timestamp: testBase.Add(offset),
		Station:   station,
		Seq:       seq,
		Pos: &record.PosTransaction{
			Customer: customer,
			SKU:      sku,
			WeightG:  weightG,
		},
	}
}

func rfidRec(offset time.Duration, station, sku string, zone record.Zone, seq int64) *record.Record {
	return &record.Record{
		Kind:      record.KindRfidReading,
		Timestamp: testBase.Add(offset),
		Station:   station,
		Seq:       seq,
		Rfid:      &record.RfidReading{EPC: "EPC-" + sku, SKU: sku, Zone: zone},
	}
}

func recognitionRec(offset time.Duration, station, predicted string, confidence float64, seq int64) *record.Record {
	return &record.Record{
		Kind:        record.KindProductRecognition,
		Timestamp:   testBase.Add(offset),
		Station:     station,
		Seq:         seq,
		Recognition: &record.ProductRecognition{PredictedSKU: predicted, Confidence: confidence},
	}
}
