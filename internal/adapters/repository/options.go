package repository

import (
	"time"

	"github.com/okian/platewatch/pkg/logger"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithFlushInterval sets the debounce window between durable flushes.
func WithFlushInterval(interval time.Duration) Option {
	return func(l *Ledger) {
		if interval > 0 {
			l.flushInterval = interval
		}
	}
}

// WithFlushTimeout bounds each backend write.
func WithFlushTimeout(timeout time.Duration) Option {
	return func(l *Ledger) {
		if timeout > 0 {
			l.flushTimeout = timeout
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets a custom logger for the ledger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Ledger) {
		if lg != nil {
			l.logger = lg
		}
	}
}
