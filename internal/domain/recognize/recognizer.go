// Package recognize turns a region of interest into plate text through a
// pluggable OCR engine.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync/atomic"
	"time"

	"github.com/sunshineplan/imgconv"

	"github.com/okian/platewatch/pkg/logger"
	"github.com/okian/platewatch/pkg/metrics"
)

// Default recognizer configuration constants.
const (
	defaultUpscale   = 4.0
	defaultFloor     = 0.25
	defaultWidthThs  = 0.5
	defaultHeightThs = 0.5
	defaultTimeout   = 2 * time.Second
	defaultMinLength = 5
)

// Fragment is one piece of text the engine found, with its confidence in
// [0,1] and its extent in the image passed to the engine.
type Fragment struct {
	Text       string
	Confidence float64
	Bounds     image.Rectangle
}

// Engine is an OCR backend.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) ([]Fragment, error)
}

// Reading is the recognizer's answer for one region.
type Reading struct {
	Text       string
	Confidence float64
	Fragments  int // number of engine fragments merged into Text
}

// Stats summarises recognition outcomes since start.
type Stats struct {
	Attempts    int64   `json:"attempts"`
	Reads       int64   `json:"successful_reads"`
	SuccessRate float64 `json:"success_rate"`
}

// Recognizer wraps an Engine with upscaling, a timeout, fragment filtering
// and merging.
type Recognizer struct {
	engine    Engine
	upscale   float64
	floor     float64
	widthThs  float64
	heightThs float64
	timeout   time.Duration
	minLength int
	logger    logger.Logger

	attempts atomic.Int64
	reads    atomic.Int64
}

// New creates a recognizer over engine.
func New(engine Engine, opts ...Option) *Recognizer {
	r := &Recognizer{
		engine:    engine,
		upscale:   defaultUpscale,
		floor:     defaultFloor,
		widthThs:  defaultWidthThs,
		heightThs: defaultHeightThs,
		timeout:   defaultTimeout,
		minLength: defaultMinLength,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("recognizer")
	}
	return r
}

// Read recognises the text in roi. Any failure, including engine errors and
// timeouts, is reported as an error wrapping ErrUnreadable.
func (r *Recognizer) Read(ctx context.Context, roi image.Image) (Reading, error) {
	r.attempts.Add(1)
	metrics.RecordOCRAttempt()

	if roi == nil || roi.Bounds().Empty() {
		return r.unreadable("empty_region", fmt.Errorf("%w: empty region", ErrUnreadable))
	}

	start := time.Now()
	frags, err := r.recognize(ctx, r.scale(roi))
	metrics.RecordOCRLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		reason := "engine_error"
		if ctx.Err() == nil && isTimeout(err) {
			reason = "timeout"
		}
		r.logger.Debug(ctx, "ocr engine call failed", logger.String("reason", reason), logger.Error(err))
		return r.unreadable(reason, fmt.Errorf("%w: %w", ErrUnreadable, err))
	}

	kept := make([]Fragment, 0, len(frags))
	for _, f := range frags {
		if f.Confidence >= r.floor && f.Text != "" {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return r.unreadable("low_confidence", fmt.Errorf("%w: no fragment above %.2f", ErrUnreadable, r.floor))
	}

	text, conf, n := best(kept, r.widthThs, r.heightThs)
	text, chars := clean(text)
	if chars < r.minLength {
		return r.unreadable("too_short", fmt.Errorf("%w: %q too short", ErrUnreadable, text))
	}

	r.reads.Add(1)
	metrics.RecordOCRRead()
	return Reading{Text: text, Confidence: clamp01(conf), Fragments: n}, nil
}

// Stats returns attempt and success counters.
func (r *Recognizer) Stats() Stats {
	s := Stats{Attempts: r.attempts.Load(), Reads: r.reads.Load()}
	if s.Attempts > 0 {
		s.SuccessRate = float64(s.Reads) / float64(s.Attempts)
	}
	return s
}

func (r *Recognizer) unreadable(reason string, err error) (Reading, error) {
	metrics.RecordOCRUnreadable(reason)
	return Reading{}, err
}

// scale upscales img by the configured factor. Fragment bounds returned by
// the engine are in the upscaled space, which only matters relative to other
// fragments of the same call.
func (r *Recognizer) scale(img image.Image) image.Image {
	if r.upscale <= 1 {
		return img
	}
	b := img.Bounds()
	return imgconv.Resize(img, &imgconv.ResizeOption{
		Width:  int(math.Round(float64(b.Dx()) * r.upscale)),
		Height: int(math.Round(float64(b.Dy()) * r.upscale)),
	})
}

// recognize runs the engine under the configured timeout. The engine keeps
// running in the background if it ignores cancellation; its late result is
// discarded.
func (r *Recognizer) recognize(ctx context.Context, img image.Image) ([]Fragment, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		frags []Fragment
		err   error
	}
	done := make(chan result, 1)
	go func() {
		frags, err := r.engine.Recognize(ctx, img)
		done <- result{frags: frags, err: err}
	}()

	select {
	case res := <-done:
		return res.frags, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

func isTimeout(err error) bool {
	return err != nil && (errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded))
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
