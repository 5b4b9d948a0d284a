package recognize

import "errors"

// Sentinel kinds for recognition errors.
var (
	ErrUnreadable = errors.New("region unreadable")
	ErrTimeout    = errors.New("recognition timed out")
)
