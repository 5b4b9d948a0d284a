// Package vision adapts OpenCV (gocv) to the detection pipeline: Haar cascade
// region detectors and a camera frame source.
package vision

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/okian/platewatch/internal/domain/detect"
	"github.com/okian/platewatch/internal/domain/model"
)

// CascadeParams configures one Haar cascade region detector.
type CascadeParams struct {
	Name         string
	Path         string
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
	MaxSize      image.Point
}

// DefaultCascades returns the two plate cascades the pipeline runs by default:
// a strict one tuned for wide plates and a looser general one.
func DefaultCascades(path string) []CascadeParams {
	return []CascadeParams{
		{
			Name:         "plate_wide",
			Path:         path,
			ScaleFactor:  1.1,
			MinNeighbors: 4,
			MinSize:      image.Pt(50, 15),
			MaxSize:      image.Pt(300, 100),
		},
		{
			Name:         "plate_default",
			Path:         path,
			ScaleFactor:  1.2,
			MinNeighbors: 3,
			MinSize:      image.Pt(40, 15),
			MaxSize:      image.Pt(400, 120),
		},
	}
}

// Cascade is a detect.RegionDetector backed by a Haar cascade. The box area
// stands in for detection strength since OpenCV does not expose the
// per-box confirmation count through this call.
type Cascade struct {
	params     CascadeParams
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

var _ detect.RegionDetector = (*Cascade)(nil)

// NewCascade loads the cascade file.
func NewCascade(p CascadeParams) (*Cascade, error) {
	if p.ScaleFactor <= 1 {
		return nil, fmt.Errorf("%w: scale factor %v", ErrInvalidCascade, p.ScaleFactor)
	}
	c := gocv.NewCascadeClassifier()
	if !c.Load(p.Path) {
		c.Close()
		return nil, fmt.Errorf("%w: %s", ErrCascadeLoad, p.Path)
	}
	return &Cascade{params: p, classifier: c}, nil
}

// Name implements detect.RegionDetector.
func (c *Cascade) Name() string { return c.params.Name }

// Detect implements detect.RegionDetector.
func (c *Cascade) Detect(frame model.Frame) ([]detect.Box, error) {
	gray, err := grayMat(frame)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	c.mu.Lock()
	rects := c.classifier.DetectMultiScaleWithParams(gray,
		c.params.ScaleFactor, c.params.MinNeighbors, 0, c.params.MinSize, c.params.MaxSize)
	c.mu.Unlock()

	boxes := make([]detect.Box, 0, len(rects))
	for _, r := range rects {
		w, h := r.Dx(), r.Dy()
		boxes = append(boxes, detect.Box{X: r.Min.X, Y: r.Min.Y, W: w, H: h, Strength: float64(w * h)})
	}
	return boxes, nil
}

// Close releases the classifier.
func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier.Close()
}

// grayMat wraps the frame pixels in a Mat and converts it to grayscale.
func grayMat(frame model.Frame) (gocv.Mat, error) {
	if !frame.Valid() {
		return gocv.Mat{}, ErrInvalidFrame
	}
	var mt gocv.MatType
	var code gocv.ColorConversionCode
	switch frame.Channels {
	case model.ChannelsGray:
		mt = gocv.MatTypeCV8UC1
	case model.ChannelsBGR:
		mt, code = gocv.MatTypeCV8UC3, gocv.ColorBGRToGray
	case model.ChannelsBGRA:
		mt, code = gocv.MatTypeCV8UC4, gocv.ColorBGRAToGray
	default:
		return gocv.Mat{}, ErrInvalidFrame
	}

	src, err := gocv.NewMatFromBytes(frame.Height, frame.Width, mt, frame.Pix[:frame.Width*frame.Height*frame.Channels])
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("wrap frame: %w", err)
	}
	if frame.Channels == model.ChannelsGray {
		return src, nil
	}
	defer src.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(src, &gray, code)
	return gray, nil
}
