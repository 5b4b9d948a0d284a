package detect

import "github.com/okian/platewatch/pkg/logger"

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithIoUThreshold sets the overlap above which the weaker box is suppressed.
func WithIoUThreshold(threshold float64) Option {
	return func(d *Detector) {
		if threshold > 0 && threshold <= 1 {
			d.threshold = threshold
		}
	}
}

// WithLogger sets a custom logger for the detector.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}
