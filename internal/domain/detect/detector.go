// Package detect fuses plate-region candidates from several detectors into a
// deduplicated set of regions of interest for one frame.
package detect

import (
	"context"

	"github.com/okian/platewatch/internal/domain/model"
	"github.com/okian/platewatch/pkg/logger"
)

// RegionDetector finds plate-shaped regions in a frame. Implementations are
// independently configured (sensitivity, neighbour count, size range) and
// report a strength per box.
type RegionDetector interface {
	Name() string
	Detect(frame model.Frame) ([]Box, error)
}

// Detector runs a fixed list of region detectors and suppresses overlaps.
// It keeps no state between frames.
type Detector struct {
	detectors []RegionDetector
	threshold float64
	logger    logger.Logger
}

// New builds a Detector over the given region detectors.
func New(detectors []RegionDetector, opts ...Option) *Detector {
	d := &Detector{
		detectors: append([]RegionDetector(nil), detectors...),
		threshold: DefaultIoUThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("detector")
	}
	return d
}

// Detect returns the deduplicated candidate regions in frame. Invalid frames
// and frames where nothing is found yield an empty result; a failing region
// detector is logged and contributes no boxes.
func (d *Detector) Detect(ctx context.Context, frame model.Frame) []Box {
	if !frame.Valid() || len(d.detectors) == 0 {
		return nil
	}

	var all []Box
	for _, rd := range d.detectors {
		if ctx.Err() != nil {
			return nil
		}
		boxes, err := rd.Detect(frame)
		if err != nil {
			d.logger.Warn(ctx, "region detector failed",
				logger.String("detector", rd.Name()),
				logger.Error(err),
			)
			continue
		}
		all = append(all, boxes...)
	}
	return Suppress(all, d.threshold)
}

// Len returns the number of configured region detectors.
func (d *Detector) Len() int {
	return len(d.detectors)
}
