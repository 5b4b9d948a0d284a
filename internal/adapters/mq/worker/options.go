package worker

import (
	"github.com/okian/platewatch/pkg/logger"
)

// Option applies a configuration option to the FrameWorker.
type Option func(*FrameWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *FrameWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *FrameWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}
