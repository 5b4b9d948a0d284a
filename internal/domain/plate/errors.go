package plate

import "errors"

// Sentinel kinds for validation errors.
var (
	ErrRejected = errors.New("plate rejected")
)
