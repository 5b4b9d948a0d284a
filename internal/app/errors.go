package service

import "errors"

var (
	// ErrNotStarted is returned when frames are submitted before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrNoLedger is returned by New when no ledger is given.
	ErrNoLedger = errors.New("ledger is required")
	// ErrCaptureStalled is returned by Stop when the capture loop is still
	// blocked in the source after the ledger was closed.
	ErrCaptureStalled = errors.New("capture loop did not stop")
)
