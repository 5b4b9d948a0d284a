package vision

import "errors"

// Sentinel kinds for vision errors.
var (
	ErrInvalidFrame   = errors.New("invalid frame")
	ErrInvalidCascade = errors.New("invalid cascade parameters")
	ErrCascadeLoad    = errors.New("cannot load cascade")
	ErrCaptureOpen    = errors.New("cannot open capture source")
	ErrNoFrame        = errors.New("no frame available")
)
