package repository

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrNotFound           = errors.New("plate not found")
	ErrInvalidObservation = errors.New("invalid observation")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidQuery       = errors.New("invalid query")
	ErrClosed             = errors.New("ledger closed")
	ErrWriteTimeout       = errors.New("backend write timed out")
	ErrBackendBusy        = errors.New("backend still writing")
)
