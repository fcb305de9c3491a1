package record

import (
	"sort"
	"time"
)

// Kind identifies the source stream a normalized record came from.
type Kind int

const (
	KindPosTransaction Kind = iota
	KindRfidReading
	KindProductRecognition
	KindQueueSample
	KindInventorySnapshot
)

func (k Kind) String() string {
	switch k {
	case KindPosTransaction:
		return "pos_transaction"
	case KindRfidReading:
		return "rfid_reading"
	case KindProductRecognition:
		return "product_recognition"
	case KindQueueSample:
		return "queue_sample"
	case KindInventorySnapshot:
		return "inventory_snapshot"
	default:
		return "unknown"
	}
}

// Zone is the RFID antenna zone a tag was read in.
type Zone string

const (
	ZoneScanArea Zone = "IN_SCAN_AREA"
	ZoneShelf    Zone = "SHELF"
)

// Record is the normalized, immutable representation of one sensor reading.
// Exactly one variant pointer is set, matching Kind. Records are totally
// ordered by (Timestamp, Seq); Seq is the ingest arrival order and breaks
// timestamp ties deterministically.
type Record struct {
	Kind      Kind
	Timestamp time.Time
	Station   string
	Status    string
	Seq       int64

	Pos         *PosTransaction
	Rfid        *RfidReading
	Recognition *ProductRecognition
	Queue       *QueueSample
	Inventory   *InventorySnapshot
}

type PosTransaction struct {
	Customer    string
	SKU         string
	ProductName string
	Barcode     string
	WeightG     float64
}

type RfidReading struct {
	EPC  string
	SKU  string
	Zone Zone
}

type ProductRecognition struct {
	PredictedSKU string
	Confidence   float64
}

type QueueSample struct {
	CustomerCount   int
	AvgDwellSeconds float64
}

// InventorySnapshot carries the per-SKU counts reported by the back office
// at snapshot time.
type InventorySnapshot struct {
	Counts map[string]int
}

// SKU returns the SKU a record refers to, if it has one.
func (r *Record) SKU() (string, bool) {
	switch r.Kind {
	case KindPosTransaction:
		return r.Pos.SKU, r.Pos.SKU != ""
	case KindRfidReading:
		return r.Rfid.SKU, r.Rfid.SKU != ""
	case KindProductRecognition:
		return r.Recognition.PredictedSKU, r.Recognition.PredictedSKU != ""
	default:
		return "", false
	}
}

// Before reports the total order used throughout the pipeline.
func (r *Record) Before(other *Record) bool {
	if !r.Timestamp.Equal(other.Timestamp) {
		return r.Timestamp.Before(other.Timestamp)
	}
	return r.Seq < other.Seq
}

// SortByTime sorts records in place by timestamp, arrival order on ties.
func SortByTime(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Before(records[j])
	})
}
