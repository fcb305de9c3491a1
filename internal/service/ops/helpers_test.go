package ops

import (
	"io"
	"log/slog"
	"time"

	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
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

func queueRec(offset time.Duration, station string, count int, dwellSeconds float64, seq int64) *record.Record {
	return &record.Record{
		Kind:      record.KindQueueSample,
		Timestamp: testBase.Add(offset),
		Station:   station,
		Seq:       seq,
		Queue:     &record.QueueSample{CustomerCount: count, AvgDwellSeconds: dwellSeconds},
	}
}

func posRec(offset time.Duration, station string, seq int64) *record.Record {
	return &record.Record{
		Kind:      record.KindPosTransaction,
		Timestamp: testBase.Add(offset),
		Station:   station,
		Seq:       seq,
		Pos:       &record.PosTransaction{Customer: "C001", SKU: "PRD_1"},
	}
}
