// Package inventory reconciles expected stock against RFID-observed stock
// and tracks fully-agreeing checkout transactions as a success baseline.
package inventory

import (
	"sort"
	"time"

	"github.com/storesight/storesight/internal/domain/record"
)

// LedgerEntry is the running reconciliation state for one SKU.
type LedgerEntry struct {
	SKU         string
	Expected    int
	Observed    int
	LastUpdated time.Time
}

// Ledger is a computed projection over the record stream: seeded once from
// a snapshot, then updated strictly incrementally in timestamp order.
// Expected counts are never recomputed from scratch mid-run.
type Ledger struct {
	entries map[string]*LedgerEntry
}

// NewLedger seeds the ledger from an inventory snapshot record.
func NewLedger(snapshot *record.Record) *Ledger {
	l := &Ledger{entries: make(map[string]*LedgerEntry, len(snapshot.Inventory.Counts))}
	for sku, count := range snapshot.Inventory.Counts {
		l.entries[sku] = &LedgerEntry{
			SKU:         sku,
			Expected:    count,
			LastUpdated: snapshot.Timestamp,
		}
	}
	return l
}

// ApplySale decrements the expected count for a sold SKU. SKUs outside the
// snapshot are not tracked.
func (l *Ledger) ApplySale(pos *record.Record) {
	e, ok := l.entries[pos.Pos.SKU]
	if !ok {
		return
	}
	e.Expected--
	e.LastUpdated = pos.Timestamp
}

// Observe counts an in-zone RFID reading toward the observed stock of its
// SKU.
func (l *Ledger) Observe(rfid *record.Record) {
	if rfid.Rfid.Zone != record.ZoneScanArea && rfid.Rfid.Zone != record.ZoneShelf {
		return
	}
	e, ok := l.entries[rfid.Rfid.SKU]
	if !ok {
		return
	}
	e.Observed++
	e.LastUpdated = rfid.Timestamp
}

// Entries returns the ledger in SKU order for deterministic iteration.
func (l *Ledger) Entries() []*LedgerEntry {
	out := make([]*LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

// Lookup returns the entry for a SKU, if tracked.
func (l *Ledger) Lookup(sku string) (*LedgerEntry, bool) {
	e, ok := l.entries[sku]
	return e, ok
}
