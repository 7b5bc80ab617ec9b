// Package renames reconstructs the identity chain of every file present in
// the analyzed snapshot: the names it was known by and when each was valid.
package renames

import (
	"math"
	"sort"

	"github.com/Sumatoshi-tech/codetree/pkg/gitlog"
)

// Forever is the end of the interval of a name that is still current.
const Forever int64 = math.MaxInt64

// Interval is a half-open validity window [Start, End) during which From was
// the name of the file whose canonical (latest) name is To.
type Interval struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}

// Contains reports whether ts falls inside the interval.
func (iv Interval) Contains(ts int64) bool {
	return iv.Start <= ts && ts < iv.End
}

// chain holds the intervals of one file, newest first.
type chain struct {
	intervals []Interval
}

func (c *chain) newest() *Interval {
	return &c.intervals[len(c.intervals)-1]
}

// Stats counts what happened while resolving.
type Stats struct {
	Events     int
	Applied    int
	Unresolved int
	Collisions int
}

// Resolve builds the rename table for the given snapshot paths. Events may
// come in any order; they are processed newest first, ties keeping their
// input order, which is the discovery order of a newest-first log.
func Resolve(events []gitlog.RenameEvent, snapshot []string) (*Table, Stats) {
	open := make(map[string]*chain, len(snapshot))
	order := make([]*chain, 0, len(snapshot))

	for _, p := range snapshot {
		if _, dup := open[p]; dup {
			continue
		}

		c := &chain{intervals: []Interval{{From: p, To: p, Start: 0, End: Forever}}}
		open[p] = c
		order = append(order, c)
	}

	sorted := make([]gitlog.RenameEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp > sorted[j].Timestamp
	})

	stats := Stats{Events: len(sorted)}

	for _, ev := range sorted {
		if ev.From == ev.To {
			continue
		}

		c, ok := open[ev.To]
		if !ok {
			stats.Unresolved++

			continue
		}

		stats.Applied++
		c.newest().Start = ev.Timestamp

		delete(open, ev.To)

		if ev.IsCreation() {
			continue
		}

		if other, taken := open[ev.From]; taken {
			// The old name was reused after this rename; that file began at ev.Timestamp.
			stats.Collisions++
			other.newest().Start = ev.Timestamp

			delete(open, ev.From)
		}

		c.intervals = append(c.intervals, Interval{From: ev.From, To: ev.To, Start: 0, End: ev.Timestamp})
		open[ev.From] = c
	}

	return newTable(order), stats
}
