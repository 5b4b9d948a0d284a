package recognize

import (
	"time"

	"github.com/okian/platewatch/pkg/logger"
)

// Option applies a configuration option to the Recognizer.
type Option func(*Recognizer)

// WithUpscale sets the geometric upscale factor applied before recognition.
// Larger factors read small plates better at proportionally higher latency.
func WithUpscale(factor float64) Option {
	return func(r *Recognizer) {
		if factor >= 1 {
			r.upscale = factor
		}
	}
}

// WithConfidenceFloor drops engine fragments below the given confidence.
func WithConfidenceFloor(floor float64) Option {
	return func(r *Recognizer) {
		if floor >= 0 && floor <= 1 {
			r.floor = floor
		}
	}
}

// WithWidthTolerance sets the largest horizontal gap, relative to fragment
// height, at which two fragments are still considered adjacent.
func WithWidthTolerance(ths float64) Option {
	return func(r *Recognizer) {
		if ths >= 0 {
			r.widthThs = ths
		}
	}
}

// WithHeightTolerance sets the largest height difference, relative to
// fragment height, at which two fragments are still considered adjacent.
func WithHeightTolerance(ths float64) Option {
	return func(r *Recognizer) {
		if ths >= 0 {
			r.heightThs = ths
		}
	}
}

// WithTimeout bounds a single engine call.
func WithTimeout(d time.Duration) Option {
	return func(r *Recognizer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMinLength sets the minimum number of alphanumeric characters a reading
// must contain.
func WithMinLength(n int) Option {
	return func(r *Recognizer) {
		if n > 0 {
			r.minLength = n
		}
	}
}

// WithLogger sets a custom logger for the recognizer.
func WithLogger(l logger.Logger) Option {
	return func(r *Recognizer) {
		if l != nil {
			r.logger = l
		}
	}
}
