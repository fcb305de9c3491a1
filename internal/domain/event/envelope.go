package event

import "time"

// Envelope is the canonical wire form of a detected event: one flat JSON
// object per output line. Linked event IDs for aggregated events travel in
// Metadata; raw evidence records do not leave the engine.
type Envelope struct {
	EventID    int64          `json:"event_id"`
	Timestamp  string         `json:"timestamp"`
	EventType  Type           `json:"event_type"`
	Severity   Severity       `json:"severity"`
	Description string        `json:"description"`
	RiskScore  float64        `json:"risk_score"`
	StationID  string         `json:"station_id,omitempty"`
	CustomerID string         `json:"customer_id,omitempty"`
	SKU        string         `json:"sku,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (e *Event) Envelope() Envelope {
	return Envelope{
		EventID:     e.ID,
		Timestamp:   e.Timestamp.Format(time.RFC3339),
		EventType:   e.Type,
		Severity:    e.Severity,
		Description: e.Type.Description(),
		RiskScore:   Round1(e.RiskScore),
		StationID:   e.Station,
		CustomerID:  e.Customer,
		SKU:         e.SKU,
		Metadata:    e.Metadata,
	}
}
