package ops

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/domain/record"
	"github.com/storesight/storesight/internal/infrastructure/config"
)

// StationPerformance raises one alert when a station accumulates enough
// breaching queue samples inside the look-back window. The alert is
// debounced: a contiguous qualifying span fires once, on its rising edge,
// instead of once per sliding position.
type StationPerformance struct {
	queueThreshold int
	waitThreshold  float64
	occurrences    int
	window         time.Duration
	logger         *slog.Logger
}

func NewStationPerformance(cfg config.DetectionConfig, logger *slog.Logger) *StationPerformance {
	return &StationPerformance{
		queueThreshold: cfg.QueueLengthAlert,
		waitThreshold:  cfg.StationAlertWaitThreshold,
		occurrences:    cfg.StationAlertOccurrences,
		window:         cfg.StationAlertWindow(),
		logger:         logger.With("detector", "station_performance"),
	}
}

func (d *StationPerformance) Name() string { return "station_performance" }

func (d *StationPerformance) breaches(q *record.QueueSample) bool {
	return q.CustomerCount > d.queueThreshold || q.AvgDwellSeconds > d.waitThreshold
}

func (d *StationPerformance) Detect(ctx context.Context, batch *record.Batch) ([]*event.Event, error) {
	byStation := make(map[string][]*record.Record)
	var stations []string
	for _, q := range batch.Queue {
		if _, seen := byStation[q.Station]; !seen {
			stations = append(stations, q.Station)
		}
		byStation[q.Station] = append(byStation[q.Station], q)
	}

	var events []*event.Event
	for _, station := range stations {
		events = append(events, d.scanStation(station, byStation[station])...)
	}
	return events, nil
}

func (d *StationPerformance) scanStation(station string, samples []*record.Record) []*event.Event {
	var events []*event.Event
	var recent []*record.Record // breaching samples within the window, time order
	inSpan := false

	for _, s := range samples {
		cutoff := s.Timestamp.Add(-d.window)
		for len(recent) > 0 && recent[0].Timestamp.Before(cutoff) {
			recent = recent[1:]
		}
		if d.breaches(s.Queue) {
			recent = append(recent, s)
		}

		if len(recent) >= d.occurrences {
			if !inSpan {
				events = append(events, d.alert(station, s.Timestamp, recent))
				inSpan = true
			}
		} else {
			inSpan = false
		}
	}
	return events
}

func (d *StationPerformance) alert(station string, at time.Time, window []*record.Record) *event.Event {
	maxQueue, maxWait := 0, 0.0
	sumQueue, sumWait := 0, 0.0
	for _, s := range window {
		q := s.Queue
		if q.CustomerCount > maxQueue {
			maxQueue = q.CustomerCount
		}
		if q.AvgDwellSeconds > maxWait {
			maxWait = q.AvgDwellSeconds
		}
		sumQueue += q.CustomerCount
		sumWait += q.AvgDwellSeconds
	}
	n := float64(len(window))
	avgQueue := float64(sumQueue) / n
	avgWait := sumWait / n

	risk := math.Min(60+float64(maxQueue-d.queueThreshold)*7+math.Max(0, (maxWait-d.waitThreshold)/60*6), 100)

	snapshot := window
	if len(snapshot) > 3 {
		snapshot = snapshot[len(snapshot)-3:]
	}
	recentMeta := make([]map[string]any, 0, len(snapshot))
	evidence := make([]event.Evidence, 0, len(window))
	for _, s := range window {
		evidence = append(evidence, event.Evidence{Record: s})
	}
	for _, s := range snapshot {
		recentMeta = append(recentMeta, map[string]any{
			"timestamp":    s.Timestamp,
			"queue":        s.Queue.CustomerCount,
			"wait_seconds": s.Queue.AvgDwellSeconds,
		})
	}

	return &event.Event{
		Type:      event.TypeStationPerformanceAlert,
		Timestamp: at,
		Station:   station,
		Severity:  event.ClassifyOpsSeverity(risk),
		RiskScore: event.Round1(risk),
		Evidence:  evidence,
		Metadata: map[string]any{
			"issues_detected":      len(window),
			"max_queue":            maxQueue,
			"max_wait_seconds":     int(maxWait),
			"average_queue":        event.Round1(avgQueue),
			"average_wait_seconds": event.Round1(avgWait),
			"recent_samples":       recentMeta,
			"window_minutes":       int(d.window.Minutes()),
		},
	}
}
