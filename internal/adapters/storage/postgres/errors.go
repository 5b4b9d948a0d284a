package postgres

import "errors"

// ErrNoDSN is returned when no connection string is configured.
var ErrNoDSN = errors.New("database dsn is empty")
