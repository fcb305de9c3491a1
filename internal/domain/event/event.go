package event

import (
	"fmt"
	"math"
	"time"

	"github.com/storesight/storesight/internal/domain/record"
)

// Type enumerates every detected event kind the engine can emit.
type Type string

const (
	TypeSuccess                 Type = "SUCCESS"
	TypeScannerAvoidance        Type = "SCANNER_AVOIDANCE"
	TypeBarcodeSwitching        Type = "BARCODE_SWITCHING"
	TypeWeightDiscrepancy       Type = "WEIGHT_DISCREPANCY"
	TypeSystemCrash             Type = "SYSTEM_CRASH"
	TypeLongQueue               Type = "LONG_QUEUE"
	TypeLongWait                Type = "LONG_WAIT"
	TypeInventoryDiscrepancy    Type = "INVENTORY_DISCREPANCY"
	TypeStaffingNeeds           Type = "STAFFING_NEEDS"
	TypeHighRiskCustomer        Type = "HIGH_RISK_CUSTOMER"
	TypeStationPerformanceAlert Type = "STATION_PERFORMANCE_ALERT"
)

var descriptions = map[Type]string{
	TypeSuccess:                 "Successful Operation",
	TypeScannerAvoidance:        "Scanner Avoidance",
	TypeBarcodeSwitching:        "Barcode Switching",
	TypeWeightDiscrepancy:       "Weight Discrepancy",
	TypeSystemCrash:             "Unexpected System Crash",
	TypeLongQueue:               "Long Queue Length",
	TypeLongWait:                "Long Wait Time",
	TypeInventoryDiscrepancy:    "Inventory Discrepancy",
	TypeStaffingNeeds:           "Staffing Needs",
	TypeHighRiskCustomer:        "High-Risk Customer",
	TypeStationPerformanceAlert: "Station Performance Alert",
}

// Description returns the human-readable name used in the output envelope.
func (t Type) Description() string {
	if d, ok := descriptions[t]; ok {
		return d
	}
	return "Unknown Event"
}

// Fraud reports whether events of this type feed the high-risk customer
// aggregation.
func (t Type) Fraud() bool {
	switch t {
	case TypeScannerAvoidance, TypeBarcodeSwitching, TypeWeightDiscrepancy:
		return true
	}
	return false
}

// Operational reports whether events of this type count toward the
// operational breakdown of the summary.
func (t Type) Operational() bool {
	switch t {
	case TypeLongQueue, TypeLongWait, TypeSystemCrash, TypeStaffingNeeds, TypeStationPerformanceAlert:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ClassifyFraudSeverity maps a fraud risk score onto a severity band.
// Fraud bands are tighter than operational ones.
func ClassifyFraudSeverity(score float64) Severity {
	switch {
	case score >= 85:
		return SeverityHigh
	case score >= 60:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ClassifyOpsSeverity maps an operational or inventory risk score onto a
// severity band.
func ClassifyOpsSeverity(score float64) Severity {
	switch {
	case score >= 80:
		return SeverityHigh
	case score >= 55:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Evidence references either a source record or a previously detected
// event. Exactly one field is set.
type Evidence struct {
	Record *record.Record
	Event  *Event
}

// Event is one detected event. Detectors create events without IDs; the
// engine assigns monotonic IDs once the full pass is ordered. Events are
// immutable after finalization and referenced, never mutated, by
// aggregators.
type Event struct {
	ID        int64
	Type      Type
	Timestamp time.Time
	Station   string
	Customer  string
	SKU       string
	Severity  Severity
	RiskScore float64
	Evidence  []Evidence
	Metadata  map[string]any
}

// Validate enforces the structural invariants every event must satisfy
// before it reaches a sink.
func (e *Event) Validate() error {
	if len(e.Evidence) == 0 {
		return fmt.Errorf("event %s has no evidence", e.Type)
	}
	if e.RiskScore < 0 || e.RiskScore > 100 {
		return fmt.Errorf("event %s risk score %.1f outside [0,100]", e.Type, e.RiskScore)
	}
	return nil
}

// Fingerprint identifies a detection independently of event ID so the
// streaming evaluator can deduplicate re-detections across passes.
func (e *Event) Fingerprint() string {
	return fmt.Sprintf("%s|%d|%s|%s|%s", e.Type, e.Timestamp.UnixNano(), e.Station, e.Customer, e.SKU)
}

// Round1 rounds a score to one decimal, the precision carried in the
// output envelope.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
