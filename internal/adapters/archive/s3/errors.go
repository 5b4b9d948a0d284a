package s3

import "errors"

// Sentinel kinds for archive errors.
var (
	ErrNoBucket = errors.New("s3 bucket is empty")
	ErrNoImage  = errors.New("no image to archive")
)
