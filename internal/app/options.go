package service

import "github.com/okian/platewatch/pkg/logger"

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSource sets the camera the capture loop reads from.
func WithSource(src Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithFPS sets the capture rate.
func WithFPS(fps float64) Option {
	return func(s *Service) {
		if fps > 0 {
			s.fps = fps
		}
	}
}

// WithQueueSize sets the frame queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithPadding sets the pixels added around each region before OCR.
func WithPadding(padding int) Option {
	return func(s *Service) {
		if padding >= 0 {
			s.padding = padding
		}
	}
}

// WithArchiver enables evidence uploads.
func WithArchiver(a Archiver) Option {
	return func(s *Service) {
		s.archiver = a
	}
}

// WithPublisher enables detection events.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
