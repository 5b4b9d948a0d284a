package vision

import (
	"fmt"
	"image"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/okian/platewatch/internal/domain/model"
)

// Default capture geometry.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Camera reads BGR frames from a device index, file or stream URL and resizes
// them to a fixed size.
type Camera struct {
	mu       sync.Mutex
	capture  *gocv.VideoCapture
	raw      gocv.Mat
	resized  gocv.Mat
	size     image.Point
	location string
	now      func() time.Time
}

// OpenCamera opens source. A numeric source is treated as a device index.
func OpenCamera(source, location string, width, height int) (*Camera, error) {
	var device interface{} = source
	if idx, err := strconv.Atoi(source); err == nil {
		device = idx
	}
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureOpen, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %s", ErrCaptureOpen, source)
	}
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	return &Camera{
		capture:  capture,
		raw:      gocv.NewMat(),
		resized:  gocv.NewMat(),
		size:     image.Pt(width, height),
		location: location,
		now:      time.Now,
	}, nil
}

// Read grabs the next frame. The returned pixels are a copy owned by the
// caller.
func (c *Camera) Read() (model.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capture.Read(&c.raw) || c.raw.Empty() {
		return model.Frame{}, ErrNoFrame
	}
	gocv.Resize(c.raw, &c.resized, c.size, 0, 0, gocv.InterpolationLinear)

	return model.Frame{
		Width:      c.resized.Cols(),
		Height:     c.resized.Rows(),
		Channels:   c.resized.Channels(),
		Pix:        c.resized.ToBytes(),
		Location:   c.location,
		CapturedAt: c.now(),
	}, nil
}

// Location returns the label stamped on every frame.
func (c *Camera) Location() string { return c.location }

// Close releases the device and buffers.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw.Close()
	c.resized.Close()
	return c.capture.Close()
}
