package renames

import "sort"

// Table answers "what is this path called now" queries.
type Table struct {
	intervals   []Interval
	byName      map[string][]Interval
	byCanonical map[string][]Interval
}

func newTable(chains []*chain) *Table {
	t := &Table{byName: map[string][]Interval{}, byCanonical: map[string][]Interval{}}

	for _, c := range chains {
		canonical := c.intervals[0].From

		for _, iv := range c.intervals {
			iv.To = canonical
			t.intervals = append(t.intervals, iv)
			t.byName[iv.From] = append(t.byName[iv.From], iv)
			t.byCanonical[canonical] = append(t.byCanonical[canonical], iv)
		}
	}

	for _, index := range []map[string][]Interval{t.byName, t.byCanonical} {
		for _, ivs := range index {
			sort.SliceStable(ivs, func(i, j int) bool { return ivs[i].Start < ivs[j].Start })
		}
	}

	return t
}

// Lookup returns the canonical path of the file named p at time ts.
func (t *Table) Lookup(p string, ts int64) (string, bool) {
	ivs := t.byName[p]

	idx := sort.Search(len(ivs), func(i int) bool { return ivs[i].Start > ts })
	for i := idx - 1; i >= 0; i-- {
		if ivs[i].Contains(ts) {
			return ivs[i].To, true
		}
	}

	return "", false
}

// LookupEnding returns the canonical path of the file whose name p stopped
// being valid exactly at ts, the name it had just before a rename at ts.
func (t *Table) LookupEnding(p string, ts int64) (string, bool) {
	for _, iv := range t.byName[p] {
		if iv.End == ts {
			return iv.To, true
		}
	}

	return "", false
}

// History returns the intervals of the file whose canonical path is p,
// oldest first.
func (t *Table) History(p string) []Interval {
	ivs := t.byCanonical[p]
	if len(ivs) == 0 {
		return nil
	}

	out := make([]Interval, len(ivs))
	copy(out, ivs)

	return out
}

// PreviousNames returns the names the file now at p held before it was
// called p, oldest first. A name held twice is listed once.
func (t *Table) PreviousNames(p string) []string {
	var names []string

	seen := map[string]bool{p: true}

	for _, iv := range t.History(p) {
		if !seen[iv.From] {
			seen[iv.From] = true
			names = append(names, iv.From)
		}
	}

	return names
}

// Intervals returns every interval of every chain.
func (t *Table) Intervals() []Interval {
	out := make([]Interval, len(t.intervals))
	copy(out, t.intervals)

	return out
}

// Len returns the number of intervals.
func (t *Table) Len() int {
	return len(t.intervals)
}
