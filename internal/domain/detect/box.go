package detect

import "github.com/okian/platewatch/internal/domain/model"

// Box is a candidate plate region with the confirmation strength reported by
// the detector that produced it.
type Box struct {
	X, Y, W, H int
	Strength   float64
}

// Coordinates returns the box geometry.
func (b Box) Coordinates() model.Coordinates {
	return model.Coordinates{X: b.X, Y: b.Y, W: b.W, H: b.H}
}

// Area returns the box area, zero for degenerate boxes.
func (b Box) Area() int {
	return b.Coordinates().Area()
}

// IoU returns the intersection-over-union of a and b in [0,1].
func IoU(a, b Box) float64 {
	x0, y0 := max(a.X, b.X), max(a.Y, b.Y)
	x1, y1 := min(a.X+a.W, b.X+b.W), min(a.Y+a.H, b.Y+b.H)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	inter := (x1 - x0) * (y1 - y0)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
