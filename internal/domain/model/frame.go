// Package model contains domain models passed between layers.
package model

import (
	"image"
	"image/color"
	"time"
)

// Supported channel layouts. Three-channel frames are BGR, four-channel
// frames are BGRA, matching what the capture adapter produces.
const (
	ChannelsGray = 1
	ChannelsBGR  = 3
	ChannelsBGRA = 4
)

// Frame is a decoded camera frame: a row-major grid of 8-bit interleaved pixels.
type Frame struct {
	Width      int
	Height     int
	Channels   int
	Pix        []byte
	Location   string    // label of the camera that produced the frame
	CapturedAt time.Time // acquisition time, used as the observation timestamp
}

// Valid reports whether the frame has a positive size, a supported channel
// layout and enough pixel data for its declared geometry.
func (f Frame) Valid() bool {
	if f.Width <= 0 || f.Height <= 0 {
		return false
	}
	switch f.Channels {
	case ChannelsGray, ChannelsBGR, ChannelsBGRA:
	default:
		return false
	}
	return len(f.Pix) >= f.Width*f.Height*f.Channels
}

// Bounds returns the frame rectangle anchored at the origin.
func (f Frame) Bounds() Coordinates {
	return Coordinates{W: f.Width, H: f.Height}
}

// Crop copies the region c, grown by padding on every side and clamped to the
// frame, into a standalone image. It returns false for invalid frames or
// regions that do not intersect the frame.
func (f Frame) Crop(c Coordinates, padding int) (image.Image, bool) {
	if !f.Valid() {
		return nil, false
	}
	r := c.Pad(padding).Clamp(f.Width, f.Height)
	if r.Empty() {
		return nil, false
	}

	if f.Channels == ChannelsGray {
		dst := image.NewGray(image.Rect(0, 0, r.W, r.H))
		for y := 0; y < r.H; y++ {
			src := (r.Y+y)*f.Width + r.X
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+r.W], f.Pix[src:src+r.W])
		}
		return dst, true
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.W, r.H))
	for y := 0; y < r.H; y++ {
		for x := 0; x < r.W; x++ {
			i := ((r.Y+y)*f.Width + r.X + x) * f.Channels
			dst.SetRGBA(x, y, color.RGBA{R: f.Pix[i+2], G: f.Pix[i+1], B: f.Pix[i], A: 0xff})
		}
	}
	return dst, true
}

// Coordinates is an axis-aligned rectangle in frame pixels.
type Coordinates struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Area returns w*h, or zero for degenerate rectangles.
func (c Coordinates) Area() int {
	if c.Empty() {
		return 0
	}
	return c.W * c.H
}

// Empty reports whether the rectangle has no pixels.
func (c Coordinates) Empty() bool {
	return c.W <= 0 || c.H <= 0
}

// Pad grows the rectangle by p pixels on each side.
func (c Coordinates) Pad(p int) Coordinates {
	if p <= 0 {
		return c
	}
	return Coordinates{X: c.X - p, Y: c.Y - p, W: c.W + 2*p, H: c.H + 2*p}
}

// Clamp intersects the rectangle with [0,width)x[0,height).
func (c Coordinates) Clamp(width, height int) Coordinates {
	x0, y0 := max(c.X, 0), max(c.Y, 0)
	x1, y1 := min(c.X+c.W, width), min(c.Y+c.H, height)
	if x1 <= x0 || y1 <= y0 {
		return Coordinates{}
	}
	return Coordinates{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Rect converts to an image.Rectangle.
func (c Coordinates) Rect() image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.W, c.Y+c.H)
}
