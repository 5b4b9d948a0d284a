package jsonlog

import "errors"

// Sentinel kinds for JSON log errors.
var (
	ErrNoPath       = errors.New("json log path is empty")
	ErrPartialBatch = errors.New("json log needs the full table")
	ErrCorrupt      = errors.New("json log is corrupt")
)
