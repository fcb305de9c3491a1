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

func TestStationPerformance_RepeatedBreachesRaiseOneAlert(t *testing.T) {
	d := NewStationPerformance(testDetectionConfig(), testLogger())

	// Four breaching samples inside the 15-minute window: the alert fires
	// once at the third, not again at the fourth.
	batch := &record.Batch{
		Queue: []*record.Record{
			queueRec(0, "SCC1", 7, 100, 1),
			queueRec(2*time.Minute, "SCC1", 8, 100, 2),
			queueRec(4*time.Minute, "SCC1", 9, 100, 3),
			queueRec(6*time.Minute, "SCC1", 10, 100, 4),
		},
	}

	events, err := d.Detect(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, event.TypeStationPerformanceAlert, ev.Type)
	assert.Equal(t, "SCC1", ev.Station)
	assert.Equal(t, testBase.Add(4*time.Minute), ev.Timestamp)
	assert.Equal(t, 3, ev.Metadata["issues_detected"])
	assert.Equal(t, 9, ev.Metadata["max_queue"])
}

func TestStationPerformance_TooFewBreachesNoAlert(t *testing.T) {
	d := NewStationPerformance(testDetectionConfig(), testLogger())

	batch := &record.Batch{
		Queue: []*record.Record{
			queueRec(0, "SCC1", 7, 100, 1),
			queueRec(2*time.Minute, "SCC1", 8, 100, 2),
			queueRec(4*time.Minute, "SCC1", 3, 100, 3),
		},
	}

	events, err := d.Detect(context.Background(), batch)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStationPerformance_BreachesOutsideWindowExpire(t *testing.T) {
	d := NewStationPerformance(testDetectionConfig(), testLogger())

	// Two breaches, a 20-minute lull, then a third: never three within
	// one window.
	batch := &record.Batch{
		Queue: []*record.Record{
			queueRec(0, "SCC1", 7, 100, 1),
			queueRec(2*time.Minute, "SCC1", 8, 100, 2),
			queueRec(22*time.Minute, "SCC1", 9, 100, 3),
		},
	}

	events, err := d.Detect(context.Background(), batch)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStationPerformance_WaitBreachesCountToo(t *testing.T) {
	d := NewStationPerformance(testDetectionConfig(), testLogger())

	// Queue lengths are fine; the dwell time breaches the station wait
	// threshold on every sample.
	batch := &record.Batch{
		Queue: []*record.Record{
			queueRec(0, "SCC1", 2, 400, 1),
			queueRec(2*time.Minute, "SCC1", 3, 420, 2),
			queueRec(4*time.Minute, "SCC1", 2, 450, 3),
		},
	}

	events, err := d.Detect(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 450, events[0].Metadata["max_wait_seconds"])
}

func TestStationPerformance_RefiresAfterRecovery(t *testing.T) {
	d := NewStationPerformance(testDetectionConfig(), testLogger())

	var samples []*record.Record
	seq := int64(0)
	add := func(offset time.Duration, count int) {
		seq++
		samples = append(samples, queueRec(offset, "SCC1", count, 100, seq))
	}
	// First qualifying span.
	add(0, 7)
	add(2*time.Minute, 8)
	add(4*time.Minute, 9)
	// Long healthy stretch drains the window.
	add(25*time.Minute, 1)
	// Second qualifying span.
	add(40*time.Minute, 7)
	add(42*time.Minute, 8)
	add(44*time.Minute, 9)

	events, err := d.Detect(context.Background(), &record.Batch{Queue: samples})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestStationPerformance_StationsIndependent(t *testing.T) {
	d := NewStationPerformance(testDetectionConfig(), testLogger())

	batch := &record.Batch{
		Queue: []*record.Record{
			queueRec(0, "SCC1", 7, 100, 1),
			queueRec(time.Minute, "SCC2", 7, 100, 2),
			queueRec(2*time.Minute, "SCC1", 8, 100, 3),
			queueRec(3*time.Minute, "SCC2", 8, 100, 4),
			queueRec(4*time.Minute, "SCC1", 9, 100, 5),
		},
	}

	events, err := d.Detect(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "SCC1", events[0].Station)
}
