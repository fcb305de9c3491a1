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

// GapMonitor watches for silent stations. Every record stream for a
// station merges into one time-sorted sequence; a gap between consecutive
// records longer than the crash threshold means the station went dark.
// The state machine is UP/DOWN per station: a gap transitions UP->DOWN and
// immediately DOWN->UP, emitting exactly one event per gap regardless of
// how long the gap lasted.
type GapMonitor struct {
	crashDuration time.Duration
	logger        *slog.Logger
}

func NewGapMonitor(cfg config.DetectionConfig, logger *slog.Logger) *GapMonitor {
	return &GapMonitor{
		crashDuration: cfg.SystemCrashDuration,
		logger:        logger.With("detector", "gap_monitor"),
	}
}

func (d *GapMonitor) Name() string { return "gap_monitor" }

func (d *GapMonitor) Detect(ctx context.Context, batch *record.Batch) ([]*event.Event, error) {
	byStation := make(map[string][]*record.Record)
	var stations []string
	for _, r := range batch.All() {
		if r.Station == "" {
			continue
		}
		if _, seen := byStation[r.Station]; !seen {
			stations = append(stations, r.Station)
		}
		byStation[r.Station] = append(byStation[r.Station], r)
	}

	var events []*event.Event
	for _, station := range stations {
		records := byStation[station]
		for i := 1; i < len(records); i++ {
			prev, next := records[i-1], records[i]
			gap := next.Timestamp.Sub(prev.Timestamp)
			if gap <= d.crashDuration {
				continue
			}

			gapSeconds := gap.Seconds()
			risk := math.Min(75+gapSeconds/10, 100)
			events = append(events, &event.Event{
				Type:      event.TypeSystemCrash,
				Timestamp: prev.Timestamp,
				Station:   station,
				Severity:  event.ClassifyOpsSeverity(risk),
				RiskScore: event.Round1(risk),
				Evidence: []event.Evidence{
					{Record: prev},
					{Record: next},
				},
				Metadata: map[string]any{
					"duration_seconds": int(gapSeconds),
					"resumed_at":       next.Timestamp,
				},
			})
		}
	}

	d.logger.DebugContext(ctx, "gap monitor pass complete",
		"stations", len(stations),
		"gaps", len(events))
	return events, nil
}
