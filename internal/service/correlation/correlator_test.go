package correlation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storesight/storesight/internal/domain/record"
)

var base = time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)

func rfidAt(offset time.Duration, sku, station string, seq int64) *record.Record {
	return &record.Record{
		Kind:      record.KindRfidReading,
		Timestamp: base.Add(offset),
		Station:   station,
		Seq:       seq,
		Rfid:      &record.RfidReading{SKU: sku, Zone: record.ZoneScanArea},
	}
}

func posAt(offset time.Duration, sku, station string, seq int64) *record.Record {
	return &record.Record{
		Kind:      record.KindPosTransaction,
		Timestamp: base.Add(offset),
		Station:   station,
		Seq:       seq,
		Pos:       &record.PosTransaction{SKU: sku},
	}
}

func skuStation(r *record.Record) (string, bool) {
	sku, ok := r.SKU()
	if !ok {
		return "", false
	}
	return sku + "|" + r.Station, true
}

func TestJoin_MatchesWithinWindow(t *testing.T) {
	left := []*record.Record{rfidAt(0, "PRD_1", "SCC1", 1)}
	right := []*record.Record{posAt(8*time.Second, "PRD_1", "SCC1", 2)}

	res := Join(left, right, skuStation, 10*time.Second)

	require.Len(t, res.Pairs, 1)
	assert.Empty(t, res.UnmatchedLeft)
	assert.Empty(t, res.UnmatchedRight)
}

func TestJoin_OutsideWindowUnmatched(t *testing.T) {
	left := []*record.Record{rfidAt(0, "PRD_1", "SCC1", 1)}
	right := []*record.Record{posAt(11*time.Second, "PRD_1", "SCC1", 2)}

	res := Join(left, right, skuStation, 10*time.Second)

	assert.Empty(t, res.Pairs)
	assert.Len(t, res.UnmatchedLeft, 1)
	assert.Len(t, res.UnmatchedRight, 1)
}

func TestJoin_KeyMismatchNeverPairs(t *testing.T) {
	tests := []struct {
		name  string
		right *record.Record
	}{
		{"different sku", posAt(time.Second, "PRD_2", "SCC1", 2)},
		{"different station", posAt(time.Second, "PRD_1", "SCC2", 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Join([]*record.Record{rfidAt(0, "PRD_1", "SCC1", 1)},
				[]*record.Record{tt.right}, skuStation, 10*time.Second)
			assert.Empty(t, res.Pairs)
			assert.Len(t, res.UnmatchedLeft, 1)
		})
	}
}

func TestJoin_ClosestCandidateWins(t *testing.T) {
	left := []*record.Record{rfidAt(10*time.Second, "PRD_1", "SCC1", 1)}
	right := []*record.Record{
		posAt(3*time.Second, "PRD_1", "SCC1", 2),  // |dt| = 7s
		posAt(12*time.Second, "PRD_1", "SCC1", 3), // |dt| = 2s
	}

	res := Join(left, right, skuStation, 10*time.Second)

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, int64(3), res.Pairs[0].Right.Seq)
	require.Len(t, res.UnmatchedRight, 1)
	assert.Equal(t, int64(2), res.UnmatchedRight[0].Seq)
}

func TestJoin_TieBreaksToEarlierTimestamp(t *testing.T) {
	left := []*record.Record{rfidAt(10*time.Second, "PRD_1", "SCC1", 1)}
	right := []*record.Record{
		posAt(7*time.Second, "PRD_1", "SCC1", 2),  // |dt| = 3s, earlier
		posAt(13*time.Second, "PRD_1", "SCC1", 3), // |dt| = 3s
	}

	res := Join(left, right, skuStation, 10*time.Second)

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, int64(2), res.Pairs[0].Right.Seq)
}

func TestJoin_TieBreaksToArrivalOrder(t *testing.T) {
	left := []*record.Record{rfidAt(0, "PRD_1", "SCC1", 1)}
	right := []*record.Record{
		posAt(5*time.Second, "PRD_1", "SCC1", 9),
		posAt(5*time.Second, "PRD_1", "SCC1", 4),
	}

	res := Join(left, right, skuStation, 10*time.Second)

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, int64(4), res.Pairs[0].Right.Seq)
}

func TestJoin_RightConsumedAtMostOnce(t *testing.T) {
	left := []*record.Record{
		rfidAt(0, "PRD_1", "SCC1", 1),
		rfidAt(2*time.Second, "PRD_1", "SCC1", 2),
	}
	right := []*record.Record{posAt(time.Second, "PRD_1", "SCC1", 3)}

	res := Join(left, right, skuStation, 10*time.Second)

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, int64(1), res.Pairs[0].Left.Seq)
	require.Len(t, res.UnmatchedLeft, 1)
	assert.Equal(t, int64(2), res.UnmatchedLeft[0].Seq)
}

func TestJoin_ZeroWindowRequiresExactTimestamp(t *testing.T) {
	left := []*record.Record{rfidAt(0, "PRD_1", "SCC1", 1)}

	res := Join(left, []*record.Record{posAt(0, "PRD_1", "SCC1", 2)}, skuStation, 0)
	require.Len(t, res.Pairs, 1)

	res = Join(left, []*record.Record{posAt(time.Second, "PRD_1", "SCC1", 2)}, skuStation, 0)
	assert.Empty(t, res.Pairs)
}

func TestJoin_UnsortedInputTolerated(t *testing.T) {
	left := []*record.Record{
		rfidAt(30*time.Second, "PRD_1", "SCC1", 2),
		rfidAt(0, "PRD_1", "SCC1", 1),
	}
	right := []*record.Record{
		posAt(31*time.Second, "PRD_1", "SCC1", 4),
		posAt(time.Second, "PRD_1", "SCC1", 3),
	}

	res := Join(left, right, skuStation, 10*time.Second)
	assert.Len(t, res.Pairs, 2)
}

func TestJoin_KeylessRecordsLeaveTheUniverse(t *testing.T) {
	left := []*record.Record{rfidAt(0, "", "SCC1", 1)}
	right := []*record.Record{posAt(time.Second, "", "SCC1", 2)}

	res := Join(left, right, skuStation, 10*time.Second)

	assert.Empty(t, res.Pairs)
	assert.Empty(t, res.UnmatchedLeft)
	assert.Empty(t, res.UnmatchedRight)
}

func TestJoinThree_AllThreeRequired(t *testing.T) {
	pos := []*record.Record{posAt(0, "PRD_1", "SCC1", 1)}
	rfid := []*record.Record{rfidAt(3*time.Second, "PRD_1", "SCC1", 2)}
	recog := []*record.Record{{
		Kind:        record.KindProductRecognition,
		Timestamp:   base.Add(5 * time.Second),
		Station:     "SCC1",
		Seq:         3,
		Recognition: &record.ProductRecognition{PredictedSKU: "PRD_1", Confidence: 0.9},
	}}

	triples := JoinThree(pos, rfid, recog, skuStation, 10*time.Second)
	require.Len(t, triples, 1)
	assert.Equal(t, int64(1), triples[0].Left.Seq)
	assert.Equal(t, int64(2), triples[0].Mid.Seq)
	assert.Equal(t, int64(3), triples[0].Right.Seq)

	// Without the third stream no triple forms.
	assert.Empty(t, JoinThree(pos, rfid, nil, skuStation, 10*time.Second))
}

func TestJoinThree_ThirdConsumedOnce(t *testing.T) {
	pos := []*record.Record{
		posAt(0, "PRD_1", "SCC1", 1),
		posAt(2*time.Second, "PRD_1", "SCC1", 2),
	}
	rfid := []*record.Record{
		rfidAt(time.Second, "PRD_1", "SCC1", 3),
		rfidAt(3*time.Second, "PRD_1", "SCC1", 4),
	}
	recog := []*record.Record{{
		Kind:        record.KindProductRecognition,
		Timestamp:   base.Add(time.Second),
		Station:     "SCC1",
		Seq:         5,
		Recognition: &record.ProductRecognition{PredictedSKU: "PRD_1", Confidence: 0.9},
	}}

	triples := JoinThree(pos, rfid, recog, skuStation, 10*time.Second)
	assert.Len(t, triples, 1)
}
