package domain

import "slices"

// SamePlaceFunc decides whether two sites describe the same physical place.
type SamePlaceFunc func(a, b Site) bool

// FoldSites merges single-exposure fragments into deduplicated sites. For
// each fragment the already-folded list is scanned in order:
//
//   - an exact duplicate (Site.Equal) is discarded,
//   - the first same-place match absorbs the fragment's exposures,
//   - otherwise the fragment becomes a new folded site.
//
// First-match-wins: a fragment merges into the earliest compatible site,
// never the most recent, so output order follows input order. The scan is
// O(n*k) over the current folded count k, which stays small relative to n
// for these datasets.
//
// Folding an already-folded list is a no-op: every entry is an exact
// duplicate of itself on the first comparison.
func FoldSites(sites []Site, samePlace SamePlaceFunc) []Site {
	if len(sites) == 0 {
		return nil
	}

	folded := make([]Site, 0, len(sites))
	for _, s := range sites {
		merged := false
		for i := range folded {
			if s.Equal(folded[i]) {
				merged = true
				break
			}
			if samePlace(s, folded[i]) {
				folded[i].Exposures = append(folded[i].Exposures, s.Exposures...)
				merged = true
				break
			}
		}
		if !merged {
			s.Exposures = slices.Clone(s.Exposures)
			folded = append(folded, s)
		}
	}
	return folded
}
