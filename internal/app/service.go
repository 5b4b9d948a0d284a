// Package service runs the capture loop and frame pipeline, and implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/okian/platewatch/internal/adapters/mq/queue"
	"github.com/okian/platewatch/internal/adapters/mq/worker"
	"github.com/okian/platewatch/internal/adapters/repository"
	"github.com/okian/platewatch/internal/domain/detect"
	"github.com/okian/platewatch/internal/domain/model"
	"github.com/okian/platewatch/internal/domain/recognize"
	"github.com/okian/platewatch/pkg/logger"
	"github.com/okian/platewatch/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultFPS       = 10
	defaultQueueSize = 1
	readErrorBackoff = 500 * time.Millisecond
)

// Source delivers decoded camera frames.
type Source interface {
	Read() (model.Frame, error)
	Location() string
}

// Stats is the service snapshot served at /stats.
type Stats struct {
	Started       bool             `json:"started"`
	Session       string           `json:"session"`
	Location      string           `json:"location,omitempty"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	QueueLength   int              `json:"queue_length"`
	QueueCapacity int              `json:"queue_capacity"`
	Detectors     int              `json:"detectors"`
	Ledger        repository.Stats `json:"ledger"`
	OCR           recognize.Stats  `json:"ocr"`
}

// Service owns the capture loop, the frame queue, the pipeline worker and
// the ledger.
type Service struct {
	mu sync.RWMutex

	ledger     *repository.Ledger
	detector   *detect.Detector
	recognizer *recognize.Recognizer
	pipeline   *Pipeline
	source     Source
	archiver   Archiver
	publisher  Publisher

	queue  *queue.FrameQueue
	worker *worker.FrameWorker

	fps       float64
	queueSize int
	padding   int

	session   string
	startedAt time.Time
	started   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
	captureWG sync.WaitGroup

	logger logger.Logger
}

// New constructs a service over its core components.
func New(ledger *repository.Ledger, detector *detect.Detector, recognizer *recognize.Recognizer, opts ...Option) (*Service, error) {
	if ledger == nil {
		return nil, ErrNoLedger
	}
	s := &Service{
		ledger:     ledger,
		detector:   detector,
		recognizer: recognizer,
		fps:        defaultFPS,
		queueSize:  defaultQueueSize,
		padding:    defaultPadding,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.detector == nil {
		s.detector = detect.New(nil)
	}
	s.pipeline = NewPipeline(s.detector, s.recognizer, s.ledger, s.archiver, s.publisher, s.padding, s.logger.Named("pipeline"))
	return s, nil
}

// Start launches the pipeline worker and, when a source is configured, the
// capture loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return err
	}
	s.session = id.String()
	s.startedAt = time.Now()
	s.stopCh = make(chan struct{})

	s.queue = queue.NewFrameQueue(queue.WithCapacity(s.queueSize))
	s.worker = worker.NewFrameWorker(s.queue, s.pipeline, worker.WithName("pipeline"))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker.Run(ctx)
	}()

	if s.source != nil && s.recognizer != nil {
		s.captureWG.Add(1)
		go func() {
			defer s.captureWG.Done()
			s.captureLoop(ctx)
		}()
	}

	s.started = true
	s.logger.Info(ctx, "service started",
		logger.String("session", s.session),
		logger.Float64("fps", s.fps),
		logger.Int("queueSize", s.queueSize),
		logger.Int("detectors", s.detector.Len()),
	)
	return nil
}

// captureLoop reads frames at the configured rate and hands them to the
// queue. Frames arriving while the worker is busy are dropped by the queue.
func (s *Service) captureLoop(ctx context.Context) {
	limiter := rate.NewLimiter(rate.Limit(s.fps), 1)
	failing := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}
		frame, err := s.source.Read()
		if err != nil {
			metrics.RecordFrameDropped("read_error")
			if !failing {
				s.logger.Warn(ctx, "frame read failed", logger.Error(err))
				failing = true
			}
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-time.After(readErrorBackoff):
			}
			continue
		}
		if failing {
			s.logger.Info(ctx, "frame source recovered")
			failing = false
		}
		metrics.RecordFrameCaptured()
		s.queue.Enqueue(ctx, frame)
	}
}

// Submit enqueues a frame for the pipeline worker. It reports false when the
// frame was dropped.
func (s *Service) Submit(ctx context.Context, frame model.Frame) (bool, error) { //nolint:gocritic // hugeParam: frames travel by value
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false, ErrNotStarted
	}
	metrics.RecordFrameCaptured()
	return s.queue.Enqueue(ctx, frame), nil
}

// Stop stops capture and the worker, then closes the ledger with a final
// flush. The flush does not wait for a capture loop stuck in Source.Read; if
// that loop is still running when ctx ends, ErrCaptureStalled is returned.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return s.ledger.Close(ctx)
	}

	s.logger.Info(ctx, "stopping service...")
	close(s.stopCh)
	_ = s.queue.Close()
	if err := s.worker.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker shutdown", logger.Error(err))
	}
	s.wg.Wait()

	// Frames still read by the capture loop hit the closed queue.
	err := s.ledger.Close(ctx)
	if err != nil {
		s.logger.Error(ctx, "final flush failed", logger.Error(err))
	}

	captured := make(chan struct{})
	go func() {
		s.captureWG.Wait()
		close(captured)
	}()
	select {
	case <-captured:
	case <-ctx.Done():
		s.logger.Warn(ctx, "capture loop still blocked in source read")
		err = errors.Join(err, ErrCaptureStalled)
	}

	s.started = false
	s.logger.Info(ctx, "service stopped")
	return err
}

// IngestReading validates an externally produced reading and records it.
func (s *Service) IngestReading(ctx context.Context, r Reading) (Result, error) {
	return s.pipeline.Observe(ctx, r, nil)
}

// Query lists records.
func (s *Service) Query(ctx context.Context, q repository.Query) (repository.Page, error) {
	return s.ledger.Query(ctx, q)
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, text string) (model.PlateRecord, error) {
	return s.ledger.Get(ctx, text)
}

// Verify marks a record verified.
func (s *Service) Verify(ctx context.Context, text, note string) (model.PlateRecord, error) {
	return s.ledger.Verify(ctx, text, note)
}

// Flag marks a record flagged.
func (s *Service) Flag(ctx context.Context, text, reason string) (model.PlateRecord, error) {
	return s.ledger.Flag(ctx, text, reason)
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, text string) error {
	return s.ledger.Delete(ctx, text)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:   s.started,
		Session:   s.session,
		Detectors: s.detector.Len(),
		Ledger:    s.ledger.Stats(ctx, time.Now()),
	}
	if s.source != nil {
		st.Location = s.source.Location()
	}
	if s.recognizer != nil {
		st.OCR = s.recognizer.Stats()
	}
	if s.started {
		st.UptimeSeconds = time.Since(s.startedAt).Seconds()
		st.QueueLength = s.queue.Len()
		st.QueueCapacity = s.queue.Capacity()
		metrics.UpdateQueueSize(st.QueueLength)
	}
	metrics.UpdateLedgerRecords(st.Ledger.Total)
	return st
}
