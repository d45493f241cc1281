package hashdb

import (
	"fmt"
	"io"
)

// Diff classifies the paths of two snapshots. Each list is sorted.
type Diff struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// Compare diffs older against newer by content digest. Timestamps are not
// considered: a path whose digest is identical in both is unchanged.
func Compare(older, newer *Database) Diff {
	d := Diff{Added: []string{}, Removed: []string{}, Modified: []string{}}
	for p, r := range older.records {
		if !newer.Has(p) {
			d.Removed = append(d.Removed, p)
		} else if !newer.MatchesDigest(r) {
			d.Modified = append(d.Modified, p)
		}
	}
	for p := range newer.records {
		if !older.Has(p) {
			d.Added = append(d.Added, p)
		}
	}
	sortPaths(d.Added)
	sortPaths(d.Removed)
	sortPaths(d.Modified)
	return d
}

// Empty reports whether no path changed.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Write prints the three labelled lists, one path per line.
func (d Diff) Write(w io.Writer) error {
	sections := []struct {
		label string
		paths []string
	}{
		{"Added:", d.Added},
		{"Removed:", d.Removed},
		{"Modified:", d.Modified},
	}
	for _, s := range sections {
		if _, err := fmt.Fprintln(w, s.label); err != nil {
			return err
		}
		for _, p := range s.paths {
			if _, err := fmt.Fprintln(w, p); err != nil {
				return err
			}
		}
	}
	return nil
}
