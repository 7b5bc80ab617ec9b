package renames

// Canonical returns the canonical path of the most recent file that was
// ever named p, regardless of time.
func (t *Table) Canonical(p string) (string, bool) {
	ivs := t.byName[p]
	if len(ivs) == 0 {
		return "", false
	}

	return ivs[len(ivs)-1].To, true
}
