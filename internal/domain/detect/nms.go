package detect

import "sort"

// DefaultIoUThreshold is the overlap above which the weaker box is dropped.
const DefaultIoUThreshold = 0.3

// Suppress performs greedy non-maximum suppression. Boxes are ranked by
// Strength, then by area; a box whose IoU with an already kept box exceeds
// threshold is discarded. Degenerate boxes are dropped. The input slice is
// not modified.
func Suppress(boxes []Box, threshold float64) []Box {
	ranked := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		if b.Area() > 0 {
			ranked = append(ranked, b)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Strength != ranked[j].Strength {
			return ranked[i].Strength > ranked[j].Strength
		}
		return ranked[i].Area() > ranked[j].Area()
	})

	kept := make([]Box, 0, len(ranked))
	for _, cand := range ranked {
		overlaps := false
		for _, k := range kept {
			if IoU(cand, k) > threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}
	return kept
}
