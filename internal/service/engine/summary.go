package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/storesight/storesight/internal/domain/event"
)

// Summary is the run-level report written next to the event stream.
type Summary struct {
	RunID       uuid.UUID `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`

	TotalEvents          int            `json:"total_events"`
	EventBreakdown       map[string]int `json:"event_breakdown"`
	FraudEvents          int            `json:"fraud_events"`
	OperationalEvents    int            `json:"operational_events"`
	InventoryEvents      int            `json:"inventory_events"`
	SuccessfulOperations int            `json:"successful_operations"`
	SeverityBreakdown    map[string]int `json:"severity_breakdown"`
	AverageRiskScore     float64        `json:"average_risk_score"`

	TimeRange         *TimeRange     `json:"time_range,omitempty"`
	TopAnomalies      []Anomaly      `json:"top_anomalies"`
	BusiestStations   []StationCount `json:"busiest_stations"`
	HighRiskCustomers []string       `json:"high_risk_customers"`
}

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Anomaly is a compact pointer into the event stream for the highest-risk
// detections of the run.
type Anomaly struct {
	EventID   int64     `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	StationID string    `json:"station_id,omitempty"`
	RiskScore float64   `json:"risk_score"`
}

type StationCount struct {
	StationID string `json:"station_id"`
	Events    int    `json:"events"`
}

// BuildSummary derives the run report from the finalized event list.
// Success events count toward totals and the baseline but are excluded
// from anomaly ranking.
func BuildSummary(runID uuid.UUID, events []*event.Event) *Summary {
	s := &Summary{
		RunID:             runID,
		GeneratedAt:       time.Now().UTC(),
		TotalEvents:       len(events),
		EventBreakdown:    make(map[string]int),
		SeverityBreakdown: make(map[string]int),
		TopAnomalies:      []Anomaly{},
		BusiestStations:   []StationCount{},
		HighRiskCustomers: []string{},
	}

	stationCounts := make(map[string]int)
	var riskSum float64
	var anomalies []*event.Event

	for _, ev := range events {
		s.EventBreakdown[string(ev.Type)]++
		s.SeverityBreakdown[string(ev.Severity)]++
		riskSum += ev.RiskScore

		switch {
		case ev.Type == event.TypeSuccess:
			s.SuccessfulOperations++
		case ev.Type.Fraud() || ev.Type == event.TypeHighRiskCustomer:
			s.FraudEvents++
		case ev.Type == event.TypeInventoryDiscrepancy:
			s.InventoryEvents++
		case ev.Type.Operational():
			s.OperationalEvents++
		}

		if ev.Station != "" {
			stationCounts[ev.Station]++
		}
		if ev.Type == event.TypeHighRiskCustomer && ev.Customer != "" {
			s.HighRiskCustomers = append(s.HighRiskCustomers, ev.Customer)
		}
		if ev.Type != event.TypeSuccess {
			anomalies = append(anomalies, ev)
		}

		if s.TimeRange == nil {
			s.TimeRange = &TimeRange{Start: ev.Timestamp, End: ev.Timestamp}
		} else {
			if ev.Timestamp.Before(s.TimeRange.Start) {
				s.TimeRange.Start = ev.Timestamp
			}
			if ev.Timestamp.After(s.TimeRange.End) {
				s.TimeRange.End = ev.Timestamp
			}
		}
	}

	if len(events) > 0 {
		s.AverageRiskScore = event.Round1(riskSum / float64(len(events)))
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		if anomalies[i].RiskScore != anomalies[j].RiskScore {
			return anomalies[i].RiskScore > anomalies[j].RiskScore
		}
		return anomalies[i].ID < anomalies[j].ID
	})
	for _, ev := range topN(anomalies, 5) {
		s.TopAnomalies = append(s.TopAnomalies, Anomaly{
			EventID:   ev.ID,
			EventType: string(ev.Type),
			Timestamp: ev.Timestamp,
			StationID: ev.Station,
			RiskScore: ev.RiskScore,
		})
	}

	stations := make([]StationCount, 0, len(stationCounts))
	for id, n := range stationCounts {
		stations = append(stations, StationCount{StationID: id, Events: n})
	}
	sort.Slice(stations, func(i, j int) bool {
		if stations[i].Events != stations[j].Events {
			return stations[i].Events > stations[j].Events
		}
		return stations[i].StationID < stations[j].StationID
	})
	s.BusiestStations = topN(stations, 5)

	return s
}

func topN[T any](in []T, n int) []T {
	if len(in) > n {
		return in[:n]
	}
	return in
}
