package ops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/domain/record"
)

func TestGapMonitor_GapOverThresholdFlagged(t *testing.T) {
	d := NewGapMonitor(testDetectionConfig(), testLogger())

	batch := &record.Batch{
		Pos: []*record.Record{
			posRec(0, "SCC1", 1),
			posRec(45*time.Second, "SCC1", 2),
		},
	}

	events, err := d.Detect(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, event.TypeSystemCrash, ev.Type)
	assert.Equal(t, "SCC1", ev.Station)
	// The crash is stamped at the last record before the silence.
	assert.Equal(t, testBase, ev.Timestamp)
	assert.Equal(t, 45, ev.Metadata["duration_seconds"])
	assert.Len(t, ev.Evidence, 2)
}

func TestGapMonitor_ShortGapIgnored(t *testing.T) {
	d := NewGapMonitor(testDetectionConfig(), testLogger())

	batch := &record.Batch{
		Pos: []*record.Record{
			posRec(0, "SCC1", 1),
			posRec(20*time.Second, "SCC1", 2),
		},
	}

	events, err := d.Detect(context.Background(), batch)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestGapMonitor_OneEventPerGap(t *testing.T) {
	d := NewGapMonitor(testDetectionConfig(), testLogger())

	// Two separate silences on one station.
	batch := &record.Batch{
		Pos: []*record.Record{
			posRec(0, "SCC1", 1),
			posRec(40*time.Second, "SCC1", 2),
			posRec(50*time.Second, "SCC1", 3),
			posRec(2*time.Minute, "SCC1", 4),
		},
	}

	events, err := d.Detect(context.Background(), batch)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestGapMonitor_StationsIndependent(t *testing.T) {
	d := NewGapMonitor(testDetectionConfig(), testLogger())

	// Interleaved activity: each station individually stays quiet for over
	// a minute, but the merged stream never does.
	batch := &record.Batch{
		Pos: []*record.Record{
			posRec(0, "SCC1", 1),
			posRec(20*time.Second, "SCC2", 2),
			posRec(40*time.Second, "SCC1", 3),
			posRec(time.Minute, "SCC2", 4),
		},
	}

	events, err := d.Detect(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, events, 2)
	stations := []string{events[0].Station, events[1].Station}
	assert.ElementsMatch(t, []string{"SCC1", "SCC2"}, stations)
}

func TestGapMonitor_AllStreamsCountAsActivity(t *testing.T) {
	d := NewGapMonitor(testDetectionConfig(), testLogger())

	// A queue sample in the middle of the POS silence keeps the station up.
	batch := &record.Batch{
		Pos: []*record.Record{
			posRec(0, "SCC1", 1),
			posRec(45*time.Second, "SCC1", 3),
		},
		Queue: []*record.Record{
			queueRec(25*time.Second, "SCC1", 2, 60, 2),
		},
	}

	events, err := d.Detect(context.Background(), batch)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestGapMonitor_RiskScalesWithDuration(t *testing.T) {
	d := NewGapMonitor(testDetectionConfig(), testLogger())

	batch := &record.Batch{
		Pos: []*record.Record{
			posRec(0, "SCC1", 1),
			posRec(40*time.Second, "SCC1", 2),
			posRec(10*time.Minute, "SCC1", 3),
		},
	}

	events, err := d.Detect(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Less(t, events[0].RiskScore, events[1].RiskScore)
	assert.LessOrEqual(t, events[1].RiskScore, 100.0)
}
