package redis

import "errors"

// ErrNoAddr is returned when no Redis address is configured.
var ErrNoAddr = errors.New("redis address is empty")
