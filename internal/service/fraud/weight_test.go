package fraud

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/domain/record"
)

func TestWeightDiscrepancy_Thresholds(t *testing.T) {
	tests := []struct {
		name    string
		weightG float64
		flagged bool
	}{
		{"exact weight", 500, false},
		{"within tolerance", 560, false},  // +12%
		{"at tolerance", 575, false},      // exactly +15%
		{"over tolerance", 600, true},     // +20%
		{"under tolerance", 400, true},    // -20%
		{"massively over", 2000, true},    // +300%
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewWeightDiscrepancy(testDetectionConfig(), testCatalog(), testLogger(), testRegistry(t))
			batch := &record.Batch{
				Pos: []*record.Record{posRec(0, "SCC1", "C001", "PRD_MID", tt.weightG, 1)},
			}

			events, err := d.Detect(context.Background(), batch)
			require.NoError(t, err)
			if tt.flagged {
				require.Len(t, events, 1)
				assert.Equal(t, event.TypeWeightDiscrepancy, events[0].Type)
				assert.Equal(t, "C001", events[0].Customer)
				assert.Equal(t, 500.0, events[0].Metadata["expected_weight"])
				assert.Equal(t, tt.weightG, events[0].Metadata["actual_weight"])
			} else {
				assert.Empty(t, events)
			}
		})
	}
}

func TestWeightDiscrepancy_UnknownSKUSkipped(t *testing.T) {
	d := NewWeightDiscrepancy(testDetectionConfig(), testCatalog(), testLogger(), testRegistry(t))
	batch := &record.Batch{
		Pos: []*record.Record{posRec(0, "SCC1", "C001", "PRD_NOPE", 9999, 1)},
	}

	events, err := d.Detect(context.Background(), batch)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestWeightDiscrepancy_RiskSaturatesThenScalesWithPrice(t *testing.T) {
	d := NewWeightDiscrepancy(testDetectionConfig(), testCatalog(), testLogger(), testRegistry(t))
	batch := &record.Batch{
		Pos: []*record.Record{
			posRec(0, "SCC1", "C001", "PRD_MID", 600, 1),   // +20%
			posRec(0, "SCC2", "C002", "PRD_MID", 1500, 2),  // +200%
			posRec(0, "SCC3", "C003", "PRD_DEAR", 1440, 3), // +20%, pricier item
		},
	}

	events, err := d.Detect(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// The log-scaled weight factor hits its cap just below the tolerance,
	// so any flaggable deviation on the same SKU scores the same.
	assert.Equal(t, events[0].RiskScore, events[1].RiskScore)
	// Past the cap, only the item's price keeps discriminating.
	assert.Greater(t, events[2].RiskScore, events[0].RiskScore)
	assert.LessOrEqual(t, events[2].RiskScore, 100.0)
}
