package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storesight/storesight/internal/domain/record"
)

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name  string
		fn    func(float64) Severity
		score float64
		want  Severity
	}{
		{"fraud high boundary", ClassifyFraudSeverity, 85, SeverityHigh},
		{"fraud medium", ClassifyFraudSeverity, 84.9, SeverityMedium},
		{"fraud medium boundary", ClassifyFraudSeverity, 60, SeverityMedium},
		{"fraud low", ClassifyFraudSeverity, 59.9, SeverityLow},
		{"ops high boundary", ClassifyOpsSeverity, 80, SeverityHigh},
		{"ops medium boundary", ClassifyOpsSeverity, 55, SeverityMedium},
		{"ops low", ClassifyOpsSeverity, 54.9, SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.score))
		})
	}
}

func TestTypeClassification(t *testing.T) {
	assert.True(t, TypeScannerAvoidance.Fraud())
	assert.True(t, TypeBarcodeSwitching.Fraud())
	assert.True(t, TypeWeightDiscrepancy.Fraud())
	assert.False(t, TypeLongQueue.Fraud())
	assert.False(t, TypeHighRiskCustomer.Fraud())

	assert.True(t, TypeLongQueue.Operational())
	assert.True(t, TypeSystemCrash.Operational())
	assert.False(t, TypeSuccess.Operational())
	assert.False(t, TypeInventoryDiscrepancy.Operational())
}

func TestValidate(t *testing.T) {
	ts := time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)
	rec := &record.Record{Kind: record.KindQueueSample, Timestamp: ts}

	valid := &Event{
		Type:      TypeLongQueue,
		Timestamp: ts,
		RiskScore: 56,
		Evidence:  []Evidence{{Record: rec}},
	}
	assert.NoError(t, valid.Validate())

	noEvidence := &Event{Type: TypeLongQueue, Timestamp: ts, RiskScore: 56}
	assert.Error(t, noEvidence.Validate())

	badScore := &Event{
		Type:      TypeLongQueue,
		Timestamp: ts,
		RiskScore: 101,
		Evidence:  []Evidence{{Record: rec}},
	}
	assert.Error(t, badScore.Validate())
}

func TestFingerprint_StableAndDiscriminating(t *testing.T) {
	ts := time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)
	a := &Event{Type: TypeLongQueue, Timestamp: ts, Station: "SCC1"}
	b := &Event{Type: TypeLongQueue, Timestamp: ts, Station: "SCC1", ID: 99}
	c := &Event{Type: TypeLongQueue, Timestamp: ts, Station: "SCC2"}

	// IDs do not participate: the same detection re-found later matches.
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestEnvelope_JSONShape(t *testing.T) {
	ev := &Event{
		ID:        7,
		Type:      TypeScannerAvoidance,
		Timestamp: time.Date(2025, 8, 13, 16, 5, 30, 0, time.UTC),
		Station:   "SCC1",
		SKU:       "PRD_F_01",
		Severity:  SeverityHigh,
		RiskScore: 81.25,
		Evidence:  []Evidence{{Record: &record.Record{}}},
		Metadata:  map[string]any{"epc": "E2801160"},
	}

	data, err := json.Marshal(ev.Envelope())
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, float64(7), out["event_id"])
	assert.Equal(t, "2025-08-13T16:05:30Z", out["timestamp"])
	assert.Equal(t, "SCANNER_AVOIDANCE", out["event_type"])
	assert.Equal(t, "Scanner Avoidance", out["description"])
	assert.Equal(t, "high", out["severity"])
	assert.Equal(t, 81.3, out["risk_score"])
	assert.Equal(t, "SCC1", out["station_id"])
	assert.Equal(t, "PRD_F_01", out["sku"])
	// Empty optional fields stay off the wire.
	assert.NotContains(t, out, "customer_id")
	// Raw evidence records never serialize.
	assert.NotContains(t, out, "evidence")
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 81.3, Round1(81.25))
	assert.Equal(t, 81.2, Round1(81.24))
	assert.Equal(t, 100.0, Round1(100))
}
