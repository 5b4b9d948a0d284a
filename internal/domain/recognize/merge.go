package recognize

import (
	"image"
	"sort"
	"strings"
)

// verticalAlign is the largest vertical centre offset, relative to mean
// height, for fragments on the same text line.
const verticalAlign = 0.5

// best merges the surviving fragments into one reading. Fragments are grouped
// by horizontal adjacency; the group holding the most confident fragment wins.
// A multi-fragment group is joined left to right with its mean confidence,
// a singleton group yields that fragment alone.
func best(frags []Fragment, widthThs, heightThs float64) (string, float64, int) {
	if len(frags) == 0 {
		return "", 0, 0
	}
	sorted := append([]Fragment(nil), frags...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Bounds.Min.X < sorted[j].Bounds.Min.X
	})

	parent := make([]int, len(sorted))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if adjacent(sorted[i].Bounds, sorted[j].Bounds, widthThs, heightThs) {
				parent[find(j)] = find(i)
			}
		}
	}

	top := 0
	for i := range sorted {
		if sorted[i].Confidence > sorted[top].Confidence {
			top = i
		}
	}
	root := find(top)

	var (
		parts []string
		sum   float64
	)
	for i := range sorted {
		if find(i) == root {
			parts = append(parts, sorted[i].Text)
			sum += sorted[i].Confidence
		}
	}
	return strings.Join(parts, " "), sum / float64(len(parts)), len(parts)
}

// adjacent reports whether b sits on the same line directly right of a.
// a must not start to the right of b.
func adjacent(a, b image.Rectangle, widthThs, heightThs float64) bool {
	if a.Empty() || b.Empty() {
		return false
	}
	ha, hb := float64(a.Dy()), float64(b.Dy())
	mean := (ha + hb) / 2
	if abs(ha-hb) > heightThs*mean {
		return false
	}
	ca := float64(a.Min.Y+a.Max.Y) / 2
	cb := float64(b.Min.Y+b.Max.Y) / 2
	if abs(ca-cb) > verticalAlign*mean {
		return false
	}
	gap := float64(b.Min.X - a.Max.X)
	return gap <= widthThs*mean
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// clean uppercases text, turns anything outside A-Z0-9 into a separator and
// collapses runs of separators into single spaces. It also returns the number
// of alphanumeric characters kept.
func clean(text string) (string, int) {
	var b strings.Builder
	n := 0
	pendingSpace := false
	for _, r := range strings.ToUpper(text) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			n++
			continue
		}
		pendingSpace = true
	}
	return b.String(), n
}
