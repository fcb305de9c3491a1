package fraud

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/storesight/storesight/internal/domain/event"
	"github.com/storesight/storesight/internal/infrastructure/config"
)

// HighRiskCustomers aggregates the fraud detections of the first pass into
// per-customer risk profiles. It consumes detected events, never raw
// records, and must run only after every fraud detector has finished.
//
// The aggregated score is the average of the qualifying events plus an
// escalation bonus of 5 points per qualifying event at or beyond the
// minimum, capped at 20 and clamped into [0,100]. Profiles are recomputed
// from scratch each pass.
type HighRiskCustomers struct {
	minEvents int
	minScore  float64
	logger    *slog.Logger
}

func NewHighRiskCustomers(cfg config.DetectionConfig, logger *slog.Logger) *HighRiskCustomers {
	return &HighRiskCustomers{
		minEvents: cfg.HighRiskCustomerEvents,
		minScore:  cfg.HighRiskCustomerScore,
		logger:    logger.With("detector", "high_risk_customers"),
	}
}

func (a *HighRiskCustomers) Name() string { return "high_risk_customers" }

type customerProfile struct {
	customer   string
	all        []*event.Event
	qualifying []*event.Event
	score      float64
}

// Aggregate expects events sorted by timestamp; "most recent" evidence is
// positional.
func (a *HighRiskCustomers) Aggregate(ctx context.Context, events []*event.Event) ([]*event.Event, error) {
	byCustomer := make(map[string]*customerProfile)
	var order []string

	for _, e := range events {
		if !e.Type.Fraud() || e.Customer == "" {
			continue
		}
		p := byCustomer[e.Customer]
		if p == nil {
			p = &customerProfile{customer: e.Customer}
			byCustomer[e.Customer] = p
			order = append(order, e.Customer)
		}
		p.all = append(p.all, e)
		if e.RiskScore >= a.minScore-10 {
			p.qualifying = append(p.qualifying, e)
		}
	}

	var profiles []*customerProfile
	for _, customer := range order {
		p := byCustomer[customer]
		if len(p.qualifying) < a.minEvents {
			continue
		}
		sum := 0.0
		for _, e := range p.qualifying {
			sum += e.RiskScore
		}
		avg := sum / float64(len(p.qualifying))
		bonus := math.Min(float64(len(p.qualifying)-a.minEvents+1)*5, 20)
		p.score = math.Min(avg+bonus, 100)
		profiles = append(profiles, p)
	}

	// Rank by aggregated score, customer ID as the deterministic tie-break.
	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].score != profiles[j].score {
			return profiles[i].score > profiles[j].score
		}
		return profiles[i].customer < profiles[j].customer
	})

	var out []*event.Event
	for rank, p := range profiles {
		recent := p.qualifying
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}

		evidence := make([]event.Evidence, 0, len(recent))
		recentMeta := make([]map[string]any, 0, len(recent))
		for _, e := range recent {
			evidence = append(evidence, event.Evidence{Event: e})
			recentMeta = append(recentMeta, map[string]any{
				"event_type": string(e.Type),
				"timestamp":  e.Timestamp,
				"risk_score": e.RiskScore,
				"station_id": e.Station,
			})
		}

		primary, involvement := stationInvolvement(p.qualifying)
		last := p.qualifying[len(p.qualifying)-1]

		out = append(out, &event.Event{
			Type:      event.TypeHighRiskCustomer,
			Timestamp: last.Timestamp,
			Station:   primary,
			Customer:  p.customer,
			Severity:  event.ClassifyFraudSeverity(p.score),
			RiskScore: event.Round1(p.score),
			Evidence:  evidence,
			Metadata: map[string]any{
				"rank":                   rank + 1,
				"fraud_event_count":      len(p.all),
				"qualifying_event_count": len(p.qualifying),
				"recent_events":          recentMeta,
				"station_summary":        involvement,
			},
		})
	}

	a.logger.DebugContext(ctx, "high-risk customer aggregation complete",
		"customers_seen", len(byCustomer),
		"flagged", len(out))
	return out, nil
}

type stationCount struct {
	Station string `json:"station_id"`
	Events  int    `json:"event_count"`
}

// stationInvolvement returns the most frequent station and the full
// per-station breakdown, most frequent first.
func stationInvolvement(events []*event.Event) (string, []stationCount) {
	counts := make(map[string]int)
	for _, e := range events {
		if e.Station != "" {
			counts[e.Station]++
		}
	}
	summary := make([]stationCount, 0, len(counts))
	for station, n := range counts {
		summary = append(summary, stationCount{Station: station, Events: n})
	}
	sort.Slice(summary, func(i, j int) bool {
		if summary[i].Events != summary[j].Events {
			return summary[i].Events > summary[j].Events
		}
		return summary[i].Station < summary[j].Station
	})
	if len(summary) == 0 {
		return "", nil
	}
	return summary[0].Station, summary
}
