package service

import (
	"context"
	"errors"
	"image"
	"time"

	notify "github.com/okian/platewatch/internal/adapters/notify/redis"
	"github.com/okian/platewatch/internal/adapters/repository"
	"github.com/okian/platewatch/internal/domain/detect"
	"github.com/okian/platewatch/internal/domain/model"
	"github.com/okian/platewatch/internal/domain/plate"
	"github.com/okian/platewatch/internal/domain/recognize"
	"github.com/okian/platewatch/pkg/logger"
	"github.com/okian/platewatch/pkg/metrics"
)

const (
	defaultPadding     = 10
	sideChannelTimeout = 5 * time.Second
)

// Archiver stores the evidence crop of a plate and returns its URL.
type Archiver interface {
	Archive(ctx context.Context, text string, crop image.Image, at time.Time) (string, error)
}

// Publisher broadcasts accepted observations.
type Publisher interface {
	Publish(ctx context.Context, ev notify.Event) (int64, error)
}

// Reading is a raw OCR result entering the ledger, either from a frame or
// from an external camera.
type Reading struct {
	Text        string
	Confidence  float64
	Coordinates model.Coordinates
	Location    string
	Timestamp   time.Time
}

// Result is the outcome of one accepted reading.
type Result struct {
	Observation model.Observation
	Ack         repository.Ack
}

// Pipeline turns frames into ledger observations:
// detect, crop, recognise, validate, record.
type Pipeline struct {
	detector   *detect.Detector
	recognizer *recognize.Recognizer
	ledger     *repository.Ledger
	archiver   Archiver
	publisher  Publisher
	padding    int
	logger     logger.Logger
}

// NewPipeline wires the frame stages together. Archiver and publisher are
// optional.
func NewPipeline(d *detect.Detector, r *recognize.Recognizer, l *repository.Ledger, a Archiver, p Publisher, padding int, log logger.Logger) *Pipeline {
	if padding < 0 {
		padding = defaultPadding
	}
	if log == nil {
		log = logger.Get().Named("pipeline")
	}
	return &Pipeline{
		detector:   d,
		recognizer: r,
		ledger:     l,
		archiver:   a,
		publisher:  p,
		padding:    padding,
		logger:     log,
	}
}

// Process runs one frame through the pipeline. Unreadable regions and
// rejected texts are dropped; only ledger failures are returned.
func (p *Pipeline) Process(ctx context.Context, frame model.Frame) error { //nolint:gocritic // hugeParam: frames travel by value
	start := time.Now()
	defer func() {
		metrics.RecordFrameProcessed(float64(time.Since(start).Milliseconds()))
	}()

	if !frame.Valid() || p.recognizer == nil {
		metrics.RecordFrameDropped("invalid")
		return nil
	}
	at := frame.CapturedAt
	if at.IsZero() {
		at = time.Now()
	}

	boxes := p.detector.Detect(ctx, frame)
	metrics.RecordCandidates(len(boxes))

	var errs []error
	for _, box := range boxes {
		if ctx.Err() != nil {
			break
		}
		coords := box.Coordinates()
		crop, ok := frame.Crop(coords, p.padding)
		if !ok {
			continue
		}
		reading, err := p.recognizer.Read(ctx, crop)
		if err != nil {
			p.logger.Debug(ctx, "region unreadable", logger.Any("box", coords), logger.Error(err))
			continue
		}
		_, err = p.Observe(ctx, Reading{
			Text:        reading.Text,
			Confidence:  reading.Confidence,
			Coordinates: coords,
			Location:    frame.Location,
			Timestamp:   at,
		}, crop)
		if err != nil && !errors.Is(err, plate.ErrRejected) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Observe validates one reading and merges it into the ledger. crop may be
// nil when no image is available.
func (p *Pipeline) Observe(ctx context.Context, r Reading, crop image.Image) (Result, error) {
	res, err := plate.Validate(r.Text)
	if err != nil {
		metrics.RecordPlateRejected()
		p.logger.Debug(ctx, "plate rejected", logger.String("raw", r.Text), logger.Error(err))
		return Result{}, err
	}
	metrics.RecordPlateAccepted(string(res.Kind))

	obs := model.Observation{
		RawText:     r.Text,
		Text:        res.Text,
		PatternKind: string(res.Kind),
		Confidence:  r.Confidence,
		Coordinates: r.Coordinates,
		Location:    r.Location,
		Timestamp:   r.Timestamp,
	}
	ack, err := p.ledger.Record(ctx, obs)
	if err != nil {
		metrics.RecordErrorByComponent("pipeline", "record")
		return Result{}, err
	}

	if crop != nil && (ack.Created || ack.BestImproved) {
		p.archive(ctx, obs, crop)
	}
	p.publish(ctx, obs, ack)
	return Result{Observation: obs, Ack: ack}, nil
}

func (p *Pipeline) archive(ctx context.Context, obs model.Observation, crop image.Image) {
	if p.archiver == nil {
		return
	}
	actx, cancel := context.WithTimeout(ctx, sideChannelTimeout)
	defer cancel()

	url, err := p.archiver.Archive(actx, obs.Text, crop, obs.Timestamp)
	if err != nil {
		metrics.RecordArchiveUpload("error")
		p.logger.Warn(ctx, "evidence upload failed", logger.String("plate", obs.Text), logger.Error(err))
		return
	}
	metrics.RecordArchiveUpload("ok")
	if err := p.ledger.AttachSnapshot(ctx, obs.Text, url); err != nil {
		p.logger.Warn(ctx, "attach snapshot failed", logger.String("plate", obs.Text), logger.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, obs model.Observation, ack repository.Ack) {
	if p.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, sideChannelTimeout)
	defer cancel()

	_, err := p.publisher.Publish(pctx, notify.Event{
		RecordID:       ack.ID,
		PlateText:      obs.Text,
		RawText:        obs.RawText,
		PatternKind:    obs.PatternKind,
		Confidence:     obs.Confidence,
		Coordinates:    obs.Coordinates,
		Location:       obs.Location,
		DetectionCount: ack.DetectionCount,
		Created:        ack.Created,
		BestImproved:   ack.BestImproved,
		Timestamp:      obs.Timestamp,
	})
	if err != nil {
		metrics.RecordPublish("error")
		p.logger.Warn(ctx, "publish failed", logger.String("plate", obs.Text), logger.Error(err))
		return
	}
	metrics.RecordPublish("ok")
}
