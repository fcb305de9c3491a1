package record

// Batch holds one ingested set of record streams plus the reference
// catalogs, each stream already sorted by (Timestamp, Seq).
type Batch struct {
	Pos         []*Record
	Rfid        []*Record
	Recognition []*Record
	Queue       []*Record
	Snapshots   []*Record

	Products  *Catalog
	Customers map[string]Customer
}

// Add routes a record into its stream. Streams must be re-sorted via
// Finalize before detection if arrival order was not already time order.
func (b *Batch) Add(r *Record) {
	switch r.Kind {
	case KindPosTransaction:
		b.Pos = append(b.Pos, r)
	case KindRfidReading:
		b.Rfid = append(b.Rfid, r)
	case KindProductRecognition:
		b.Recognition = append(b.Recognition, r)
	case KindQueueSample:
		b.Queue = append(b.Queue, r)
	case KindInventorySnapshot:
		b.Snapshots = append(b.Snapshots, r)
	}
}

// Finalize restores the per-stream time order. Sources are expected to be
// monotonic already; this tolerates the ones that are not.
func (b *Batch) Finalize() {
	SortByTime(b.Pos)
	SortByTime(b.Rfid)
	SortByTime(b.Recognition)
	SortByTime(b.Queue)
	SortByTime(b.Snapshots)
}

// All returns every record of the batch merged into one time-sorted slice.
func (b *Batch) All() []*Record {
	merged := make([]*Record, 0, b.Len())
	merged = append(merged, b.Pos...)
	merged = append(merged, b.Rfid...)
	merged = append(merged, b.Recognition...)
	merged = append(merged, b.Queue...)
	merged = append(merged, b.Snapshots...)
	SortByTime(merged)
	return merged
}

func (b *Batch) Len() int {
	return len(b.Pos) + len(b.Rfid) + len(b.Recognition) + len(b.Queue) + len(b.Snapshots)
}
