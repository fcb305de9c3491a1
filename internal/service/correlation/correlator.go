// Package correlation implements the time-window join primitive shared by
// the cross-stream detectors: given two record streams sorted by time, a
// join key, and a symmetric tolerance, it pairs each left record with the
// closest-in-time right record carrying the same key. A right record is
// consumed by at most one match, so a single physical scan can never be
// double counted.
package correlation

import (
	"sort"
	"time"

	"github.com/storesight/storesight/internal/domain/record"
)

// KeyFunc extracts the join key from a record. ok=false removes the record
// from the join universe entirely (it appears in neither matches nor
// unmatched sets).
type KeyFunc func(r *record.Record) (key string, ok bool)

type Pair struct {
	Left  *record.Record
	Right *record.Record
}

type Result struct {
	Pairs          []Pair
	UnmatchedLeft  []*record.Record
	UnmatchedRight []*record.Record
}

type candidate struct {
	rec      *record.Record
	consumed bool
}

type pool struct {
	cands []*candidate
	// low is the index of the first candidate still reachable by the
	// current left record; left timestamps are non-decreasing, so
	// candidates before t-W are dead for every later left as well.
	low int
}

// Join matches left records against right records with equal key whose
// timestamp lies within [t-W, t+W]. Among candidates the smallest |dt|
// wins; ties go to the earliest timestamp, then stream arrival order.
// Both inputs must be sorted by (Timestamp, Seq); Join resorts defensively
// since upstream sources occasionally violate monotonicity.
func Join(left, right []*record.Record, key KeyFunc, window time.Duration) Result {
	left = sortedCopy(left)
	right = sortedCopy(right)

	pools := make(map[string]*pool)
	for _, r := range right {
		k, ok := key(r)
		if !ok {
			continue
		}
		p := pools[k]
		if p == nil {
			p = &pool{}
			pools[k] = p
		}
		p.cands = append(p.cands, &candidate{rec: r})
	}

	var res Result
	for _, l := range left {
		k, ok := key(l)
		if !ok {
			continue
		}
		p := pools[k]
		if p == nil {
			res.UnmatchedLeft = append(res.UnmatchedLeft, l)
			continue
		}
		if best := p.take(l.Timestamp, window); best != nil {
			res.Pairs = append(res.Pairs, Pair{Left: l, Right: best})
		} else {
			res.UnmatchedLeft = append(res.UnmatchedLeft, l)
		}
	}

	for _, p := range pools {
		for _, c := range p.cands {
			if !c.consumed {
				res.UnmatchedRight = append(res.UnmatchedRight, c.rec)
			}
		}
	}
	record.SortByTime(res.UnmatchedRight)

	return res
}

// take consumes and returns the best candidate for timestamp t, or nil.
func (p *pool) take(t time.Time, window time.Duration) *record.Record {
	lo, hi := t.Add(-window), t.Add(window)

	// Advance the low watermark past candidates that can never match
	// this or any later left record.
	for p.low < len(p.cands) && p.cands[p.low].rec.Timestamp.Before(lo) {
		p.low++
	}

	start := p.low + sort.Search(len(p.cands)-p.low, func(i int) bool {
		return !p.cands[p.low+i].rec.Timestamp.Before(lo)
	})

	var best *candidate
	var bestDelta time.Duration
	for i := start; i < len(p.cands); i++ {
		c := p.cands[i]
		if c.rec.Timestamp.After(hi) {
			break
		}
		if c.consumed {
			continue
		}
		delta := absDuration(c.rec.Timestamp.Sub(t))
		if best == nil || delta < bestDelta || (delta == bestDelta && c.rec.Before(best.rec)) {
			best = c
			bestDelta = delta
		}
	}
	if best == nil {
		return nil
	}
	best.consumed = true
	return best.rec
}

// Triple is one three-way agreement across streams.
type Triple struct {
	Left  *record.Record
	Mid   *record.Record
	Right *record.Record
}

// JoinThree generalizes Join to three sources: a triple exists only when a
// left/mid pair forms and a right record with the same key lies within the
// window of the left record. Right records are consumed at most once.
func JoinThree(left, mid, right []*record.Record, key KeyFunc, window time.Duration) []Triple {
	first := Join(left, mid, key, window)

	pools := make(map[string]*pool)
	for _, r := range sortedCopy(right) {
		k, ok := key(r)
		if !ok {
			continue
		}
		p := pools[k]
		if p == nil {
			p = &pool{}
			pools[k] = p
		}
		p.cands = append(p.cands, &candidate{rec: r})
	}

	var triples []Triple
	for _, pair := range first.Pairs {
		k, _ := key(pair.Left)
		p := pools[k]
		if p == nil {
			continue
		}
		if third := p.take(pair.Left.Timestamp, window); third != nil {
			triples = append(triples, Triple{Left: pair.Left, Mid: pair.Right, Right: third})
		}
	}
	return triples
}

func sortedCopy(records []*record.Record) []*record.Record {
	out := make([]*record.Record, len(records))
	copy(out, records)
	record.SortByTime(out)
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
